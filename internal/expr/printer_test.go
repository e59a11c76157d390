package expr

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPrinter(t *testing.T) {
	o := Param("o")
	c := Param("c")
	a := Param("a")
	b := Param("b")

	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{"null", Null(), "null"},
		{"string", Const("x"), `"x"`},
		{"typed constant", TypedConst(map[string]int{"ID": 1}, "Customer"), "Customer(map[ID:1])"},
		{"decimal", Const(decimal.RequireFromString("12.50")), "12.5"},
		{"time", Const(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), "2024-01-02T03:04:05Z"},
		{"member chain", Prop(o, "Customer", "ID"), "o.Customer.ID"},
		{"binary", Eq(Prop(o, "ID"), Const(1)), "(o.ID == 1)"},
		{
			name:     "pipeline",
			node:     Select(Where(Root("Order"), Fn(Ne(Prop(o, "Customer"), Null()), o)), Fn(Prop(c, "Customer"), c)),
			expected: "Query<Order>.Where(o => (o.Customer != null)).Select(c => c.Customer)",
		},
		{"generic", OfType(Root("Person"), "Employee"), "Query<Person>.OfType<Employee>()"},
		{"take", Take(Root("Order"), 5), "Query<Order>.Take(5)"},
		{"static call", ReferenceEquals(a, b), "ReferenceEquals(a, b)"},
		{"instance call", EqualsCall(a, b), "a.Equals(b)"},
		{"property call", PropertyOf(a, "Customer"), `Property(a, "Customer")`},
		{"multi-parameter lambda", Fn(Eq(a, b), a, b), "(a, b) => (a == b)"},
		{"tuple", Tuple(Prop(a, "K1"), Prop(a, "K2")), "(a.K1, a.K2)"},
		{"object", Object([]string{"X", "Y"}, []Node{a, b}), "{X: a, Y: b}"},
		{"convert", ConvertTo(a, "Entity"), "Convert(a, Entity)"},
		{"type as", &Unary{Op: TypeAs, Operand: a, Type: "Entity"}, "(a as Entity)"},
		{"not", NotOf(Prop(a, "Active")), "!a.Active"},
		{"conditional", If(True(), a, b), "(true ? a : b)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatValue_Pointers(t *testing.T) {
	var nilPtr *int
	if got := FormatValue(nilPtr); got != "null" {
		t.Errorf("Expected null, got %q", got)
	}
	v := 7
	if got := FormatValue(&v); got != "7" {
		t.Errorf("Expected 7, got %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	o := Param("o")
	first := Where(Root("Order"), Fn(Eq(Prop(o, "ID"), Const(1)), o))
	second := Where(Root("Order"), Fn(Eq(Prop(o, "ID"), Const(1)), o))
	third := Where(Root("Order"), Fn(Eq(Prop(o, "ID"), Const(2)), o))

	if Fingerprint(first) != Fingerprint(second) {
		t.Error("Expected identical trees to share a fingerprint")
	}
	if Fingerprint(first) == Fingerprint(third) {
		t.Error("Expected different trees to have different fingerprints")
	}
	if got := FingerprintHex(first); len(got) != 16 {
		t.Errorf("Expected 16 hex digits, got %q", got)
	}
	if Fingerprint(nil) != 0 {
		t.Error("Expected zero fingerprint for nil")
	}
}
