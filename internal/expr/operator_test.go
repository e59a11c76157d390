package expr

import "testing"

func TestParseOperator(t *testing.T) {
	tests := map[string]Operator{
		"Where":           OpWhere,
		"SelectMany":      OpSelectMany,
		"LongCount":       OpLongCount,
		"LeftJoin":        OpLeftJoin,
		"ReferenceEquals": OpReferenceEquals,
		"Frobnicate":      OpUnknown,
		"":                OpUnknown,
		"where":           OpUnknown,
	}
	for name, expected := range tests {
		if got := ParseOperator(name); got != expected {
			t.Errorf("ParseOperator(%q): expected %v, got %v", name, expected, got)
		}
	}
}

func TestOperator_RoundTrip(t *testing.T) {
	for op := OpWhere; op < opCount; op++ {
		if got := ParseOperator(op.String()); got != op {
			t.Errorf("Expected %v to round-trip, got %v", op, got)
		}
	}
	if OpUnknown.String() != "Unknown" {
		t.Errorf("Expected Unknown, got %q", OpUnknown.String())
	}
}

func TestOperator_IsQueryOperator(t *testing.T) {
	if !OpWhere.IsQueryOperator() || !OpLeftJoin.IsQueryOperator() || !OpSum.IsQueryOperator() {
		t.Error("Expected pipeline operators to be query operators")
	}
	for _, op := range []Operator{OpUnknown, OpEquals, OpReferenceEquals, OpProperty} {
		if op.IsQueryOperator() {
			t.Errorf("Expected %v not to be a query operator", op)
		}
	}
}

func TestParseBinaryOp(t *testing.T) {
	if op, ok := ParseBinaryOp("=="); !ok || op != Equal {
		t.Errorf("Expected Equal for ==, got %v", op)
	}
	if op, ok := ParseBinaryOp("AndAlso"); !ok || op != AndAlso {
		t.Errorf("Expected AndAlso, got %v", op)
	}
	if _, ok := ParseBinaryOp("<>"); ok {
		t.Error("Expected <> to be rejected")
	}
	if !NotEqual.IsEquality() || LessThan.IsEquality() {
		t.Error("Unexpected IsEquality result")
	}
}

func TestHelpers(t *testing.T) {
	o := Param("o")
	sub := FirstOrDefault(Root("Order"))

	if !IsNullConstant(ConvertTo(Null(), "Order")) {
		t.Error("Expected converted null to be a null constant")
	}
	if IsNullConstant(Const(0)) {
		t.Error("Expected 0 not to be a null constant")
	}
	if !IsSubquery(ConvertTo(sub, "Order")) {
		t.Error("Expected converted FirstOrDefault to be a subquery")
	}
	if IsSubquery(EqualsCall(o, o)) {
		t.Error("Expected instance call not to be a subquery")
	}
	if v, ok := BoolValue(True()); !ok || !v {
		t.Error("Expected true constant")
	}
	if _, ok := BoolValue(Const(1)); ok {
		t.Error("Expected non-boolean constant to be rejected")
	}

	where := Where(Root("Order"), Fn(True(), o))
	if lambdas := where.Lambdas(); len(lambdas) != 1 || lambdas[0].Params[0] != o {
		t.Error("Expected single lambda bound to o")
	}
	rebuilt := OfType(Root("Person"), "Employee").WithArgs(nil, []Node{Root("Employee")})
	if rebuilt.Op != OpOfType || rebuilt.TypeArg != "Employee" {
		t.Errorf("Expected WithArgs to preserve operator and type argument, got %v", rebuilt)
	}
}
