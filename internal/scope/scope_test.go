package scope

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestQueryScope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scope   QueryScope
		wantErr string
	}{
		{"valid", QueryScope{Condition: "tenant_id = ?", Args: []interface{}{7}}, ""},
		{"no placeholders", QueryScope{Condition: "deleted_at IS NULL"}, ""},
		{"empty", QueryScope{Condition: "  "}, "empty condition"},
		{"question mark as argument", QueryScope{Condition: "note <> ?", Args: []interface{}{"?"}}, ""},
		{"question mark in literal", QueryScope{Condition: "note <> '?'"}, "every ? is a placeholder"},
		{"missing argument", QueryScope{Condition: "a = ? AND b = ?", Args: []interface{}{1}}, "2 placeholders but 1 arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApply(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		tx, err := Apply(tx.Table("orders"), []QueryScope{
			{Condition: "tenant_id = ?", Args: []interface{}{7}},
			{Condition: "deleted_at IS NULL"},
		})
		if err != nil {
			t.Fatalf("Failed to apply scopes: %v", err)
		}
		var rows []map[string]interface{}
		return tx.Find(&rows)
	})
	if !strings.Contains(sql, "tenant_id = 7") || !strings.Contains(sql, "deleted_at IS NULL") {
		t.Errorf("Expected both scopes in %q", sql)
	}

	if _, err := Apply(db, []QueryScope{{Condition: "a = ?"}}); err == nil {
		t.Error("Expected error for a scope without its argument")
	}
}
