package expr

// StripConvert removes Convert and TypeAs wrappers from n.
func StripConvert(n Node) Node {
	for {
		u, ok := n.(*Unary)
		if !ok || (u.Op != Convert && u.Op != TypeAs) {
			return n
		}
		n = u.Operand
	}
}

// IsNullConstant reports whether n, after stripping conversions, is the null literal.
func IsNullConstant(n Node) bool {
	c, ok := StripConvert(n).(*Constant)
	return ok && c.Value == nil
}

// IsSubquery reports whether n, after stripping conversions, is a query-pipeline operator call.
// Such a call evaluates to a correlated subquery once lowered.
func IsSubquery(n Node) bool {
	c, ok := StripConvert(n).(*Call)
	return ok && c.Object == nil && c.Op.IsQueryOperator()
}

// BoolValue reports the value of a boolean constant.
func BoolValue(n Node) (value bool, ok bool) {
	c, isConst := n.(*Constant)
	if !isConst {
		return false, false
	}
	value, ok = c.Value.(bool)
	return value, ok
}

// Lambdas returns the lambda arguments of a call, in order.
func (c *Call) Lambdas() []*Lambda {
	var lambdas []*Lambda
	for _, arg := range c.Args {
		if l, ok := arg.(*Lambda); ok {
			lambdas = append(lambdas, l)
		}
	}
	return lambdas
}

// WithArgs returns a copy of c with Object and Args replaced. The operator, name and
// type argument are preserved.
func (c *Call) WithArgs(object Node, args []Node) *Call {
	return &Call{Op: c.Op, Name: c.Name, Object: object, Args: args, TypeArg: c.TypeArg}
}
