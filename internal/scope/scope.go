// Package scope holds caller-supplied SQL conditions that narrow a lowered query, such as
// tenant or soft-delete filters the query tree does not express.
package scope

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryScope is a raw SQL condition ANDed into a query.
//
// GORM binds arguments to every ? in Condition in order, including one inside a quoted
// literal. A literal question mark, or an operator such as the jsonb ? of PostgreSQL, must
// be passed as an argument or written as a function call (jsonb_exists) instead.
type QueryScope struct {
	// Condition is the SQL predicate (e.g., "tenant_id = ?")
	Condition string
	// Args contains the parameter values for placeholders in Condition
	Args []interface{}
}

// Validate checks that the condition is present and that every ? has an argument.
func (s QueryScope) Validate() error {
	if strings.TrimSpace(s.Condition) == "" {
		return fmt.Errorf("query scope has an empty condition")
	}
	if n := strings.Count(s.Condition, "?"); n != len(s.Args) {
		return fmt.Errorf("query scope %q has %d placeholders but %d arguments (every ? is a placeholder)", s.Condition, n, len(s.Args))
	}
	return nil
}

// Apply adds every scope to db as a WHERE condition.
func Apply(db *gorm.DB, scopes []QueryScope) (*gorm.DB, error) {
	for _, s := range scopes {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		db = db.Where(s.Condition, s.Args...)
	}
	return db, nil
}
