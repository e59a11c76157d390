package metadata

import (
	"strings"
	"testing"
)

const testDocument = `
entities:
  - name: Customer
    keys: [ID]
    properties:
      - name: Name
    navigations:
      - name: Orders
        target: Order
        collection: true
        foreignKey: CustomerID
  - name: Order
    keys: [ID]
    properties:
      - name: CustomerID
        column: cust_id
    navigations:
      - name: Customer
        target: Customer
        foreignKey: CustomerID
  - name: PriorityOrder
    base: Order
    properties:
      - name: Priority
  - name: Shipment
    keys: [OrderID, Seq]
  - name: AuditEntry
    keyless: true
    properties:
      - name: Message
`

func TestLoadDocument_Build(t *testing.T) {
	doc, err := LoadDocument(strings.NewReader(testDocument))
	if err != nil {
		t.Fatalf("Failed to load document: %v", err)
	}
	model, err := doc.Build()
	if err != nil {
		t.Fatalf("Failed to build model: %v", err)
	}

	order := model.FindEntityType("Order")
	priority := model.FindEntityType("PriorityOrder")
	if order == nil || priority == nil {
		t.Fatal("Expected Order and PriorityOrder")
	}
	if order.TableName != "orders" {
		t.Errorf("Expected table orders, got %q", order.TableName)
	}
	if model.RootType(priority) != order {
		t.Error("Expected Order as root of PriorityOrder")
	}
	if keys := model.PrimaryKeyProperties(priority); len(keys) != 1 || keys[0].Name != "ID" {
		t.Errorf("Expected inherited key ID, got %v", keys)
	}

	nav := model.FindNavigation(priority, "Customer")
	if nav == nil {
		t.Fatal("Expected inherited Customer navigation")
	}
	if model.DeclaringType(nav) != order {
		t.Error("Expected Customer navigation declared by Order")
	}
	if !nav.ForeignKeyOnDeclaring || nav.ForeignKeyColumnName != "cust_id" {
		t.Errorf("Expected foreign key cust_id on Order, got %q (on declaring: %v)", nav.ForeignKeyColumnName, nav.ForeignKeyOnDeclaring)
	}

	orders := model.FindNavigation(model.FindEntityType("Customer"), "Orders")
	if orders == nil || !model.IsCollection(orders) || orders.ForeignKeyOnDeclaring {
		t.Error("Expected Orders to be a collection with the foreign key on Order")
	}

	shipment := model.FindEntityType("Shipment")
	if keys := model.PrimaryKeyProperties(shipment); len(keys) != 2 || keys[1].Name != "Seq" {
		t.Errorf("Expected composite key (OrderID, Seq), got %v", keys)
	}

	audit := model.FindEntityType("AuditEntry")
	if !audit.Keyless || len(model.PrimaryKeyProperties(audit)) != 0 {
		t.Error("Expected AuditEntry to be keyless")
	}
}

func TestLoadDocument_Errors(t *testing.T) {
	tests := []struct {
		name     string
		document string
		contains string
	}{
		{
			name:     "unknown field",
			document: "entities:\n  - name: A\n    kyes: [ID]\n",
			contains: "kyes",
		},
		{
			name:     "missing key",
			document: "entities:\n  - name: A\n",
			contains: "key property",
		},
		{
			name:     "unknown base",
			document: "entities:\n  - name: A\n    base: B\n",
			contains: "unregistered entity B",
		},
		{
			name:     "cyclic base",
			document: "entities:\n  - name: A\n    base: B\n  - name: B\n    base: A\n",
			contains: "cyclic",
		},
		{
			name:     "unknown navigation target",
			document: "entities:\n  - name: A\n    keys: [ID]\n    navigations:\n      - {name: B, target: B}\n",
			contains: "unregistered entity B",
		},
		{
			name:     "derived keys",
			document: "entities:\n  - name: A\n    keys: [ID]\n  - name: B\n    base: A\n    keys: [ID]\n",
			contains: "cannot declare its own keys",
		},
		{
			name:     "duplicate property",
			document: "entities:\n  - name: A\n    keys: [ID]\n    properties: [{name: X}, {name: X}]\n",
			contains: "twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := LoadDocument(strings.NewReader(tt.document))
			if err == nil {
				_, err = doc.Build()
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.contains)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestLoadDocument_Empty(t *testing.T) {
	doc, err := LoadDocument(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Failed to load empty document: %v", err)
	}
	if len(doc.Entities) != 0 {
		t.Errorf("Expected no entities, got %d", len(doc.Entities))
	}
}
