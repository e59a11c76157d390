package expr

// Const returns a constant node.
func Const(value interface{}) *Constant {
	return &Constant{Value: value}
}

// TypedConst returns a constant node declared with the given type name.
func TypedConst(value interface{}, typeName string) *Constant {
	return &Constant{Value: value, Type: typeName}
}

// Null returns the null literal.
func Null() *Constant {
	return &Constant{}
}

// True and False return boolean constants.
func True() *Constant  { return &Constant{Value: true} }
func False() *Constant { return &Constant{Value: false} }

// Root returns a queryable source for the named element type.
func Root(elementType string) *QueryRoot {
	return &QueryRoot{ElementType: elementType}
}

// Param declares a lambda parameter.
func Param(name string) *Parameter {
	return &Parameter{Name: name}
}

// Fn builds a lambda with the given parameters.
func Fn(body Node, params ...*Parameter) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Prop reads a member path from target: Prop(o, "Customer", "ID") is o.Customer.ID.
func Prop(target Node, names ...string) Node {
	n := target
	for _, name := range names {
		n = &Member{Target: n, Name: name}
	}
	return n
}

// Eq and the helpers below build binary nodes.
func Eq(left, right Node) *Binary  { return &Binary{Op: Equal, Left: left, Right: right} }
func Ne(left, right Node) *Binary  { return &Binary{Op: NotEqual, Left: left, Right: right} }
func And(left, right Node) *Binary { return &Binary{Op: AndAlso, Left: left, Right: right} }
func Or(left, right Node) *Binary  { return &Binary{Op: OrElse, Left: left, Right: right} }
func Lt(left, right Node) *Binary  { return &Binary{Op: LessThan, Left: left, Right: right} }
func Gt(left, right Node) *Binary  { return &Binary{Op: GreaterThan, Left: left, Right: right} }

// Equality builds == when isEqual is set and != otherwise.
func Equality(isEqual bool, left, right Node) *Binary {
	if isEqual {
		return Eq(left, right)
	}
	return Ne(left, right)
}

// ConvertTo wraps operand in a type conversion.
func ConvertTo(operand Node, typeName string) *Unary {
	return &Unary{Op: Convert, Operand: operand, Type: typeName}
}

// NotOf negates a boolean operand.
func NotOf(operand Node) *Unary {
	return &Unary{Op: Not, Operand: operand}
}

// Tuple builds a positional composite.
func Tuple(elements ...Node) *Composite {
	return &Composite{Elements: elements}
}

// Object builds a named composite; names and elements must be parallel.
func Object(names []string, elements []Node) *Composite {
	return &Composite{Names: names, Elements: elements}
}

// If builds a conditional.
func If(test, ifTrue, ifFalse Node) *Conditional {
	return &Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}
}

// MethodCall builds a static call, resolving the operator from name.
func MethodCall(name string, args ...Node) *Call {
	return &Call{Op: ParseOperator(name), Name: name, Args: args}
}

// InstanceCall builds an instance call on object.
func InstanceCall(object Node, name string, args ...Node) *Call {
	return &Call{Op: ParseOperator(name), Name: name, Object: object, Args: args}
}

// GenericCall builds a static call carrying a type argument (OfType, Cast).
func GenericCall(name, typeArg string, args ...Node) *Call {
	return &Call{Op: ParseOperator(name), Name: name, Args: args, TypeArg: typeArg}
}

// Where builds source.Where(predicate).
func Where(source Node, predicate *Lambda) *Call {
	return MethodCall("Where", source, predicate)
}

// Select builds source.Select(selector).
func Select(source Node, selector *Lambda) *Call {
	return MethodCall("Select", source, selector)
}

// SelectMany builds source.SelectMany(selector).
func SelectMany(source Node, selector *Lambda) *Call {
	return MethodCall("SelectMany", source, selector)
}

// Any builds source.Any(predicate).
func Any(source Node, predicate *Lambda) *Call {
	return MethodCall("Any", source, predicate)
}

// OrderBy builds source.OrderBy(key).
func OrderBy(source Node, key *Lambda) *Call {
	return MethodCall("OrderBy", source, key)
}

// FirstOrDefault builds source.FirstOrDefault().
func FirstOrDefault(source Node) *Call {
	return MethodCall("FirstOrDefault", source)
}

// Take builds source.Take(count).
func Take(source Node, count int) *Call {
	return MethodCall("Take", source, Const(count))
}

// Skip builds source.Skip(count).
func Skip(source Node, count int) *Call {
	return MethodCall("Skip", source, Const(count))
}

// Count builds source.Count().
func Count(source Node) *Call {
	return MethodCall("Count", source)
}

// OfType builds source.OfType<typeName>().
func OfType(source Node, typeName string) *Call {
	return GenericCall("OfType", typeName, source)
}

// Join builds outer.Join(inner, keys...).
func Join(outer, inner Node, keys ...Node) *Call {
	return MethodCall("Join", append([]Node{outer, inner}, keys...)...)
}

// ReferenceEquals builds ReferenceEquals(left, right).
func ReferenceEquals(left, right Node) *Call {
	return MethodCall("ReferenceEquals", left, right)
}

// EqualsCall builds object.Equals(other).
func EqualsCall(object, other Node) *Call {
	return InstanceCall(object, "Equals", other)
}

// PropertyOf builds Property(target, "name").
func PropertyOf(target Node, name string) *Call {
	return MethodCall("Property", target, Const(name))
}
