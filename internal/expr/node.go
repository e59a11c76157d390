// Package expr defines the immutable query-operator tree consumed and produced by the
// rewriting passes. Every node kind is a distinct struct implementing the sealed Node
// interface; passes switch on the concrete type and rebuild only what changed.
package expr

// Kind identifies the concrete variant of a Node.
type Kind int

const (
	KindConstant Kind = iota
	KindQueryRoot
	KindParameter
	KindLambda
	KindMember
	KindCall
	KindBinary
	KindUnary
	KindComposite
	KindConditional
)

var kindNames = [...]string{
	KindConstant:    "Constant",
	KindQueryRoot:   "QueryRoot",
	KindParameter:   "Parameter",
	KindLambda:      "Lambda",
	KindMember:      "Member",
	KindCall:        "Call",
	KindBinary:      "Binary",
	KindUnary:       "Unary",
	KindComposite:   "Composite",
	KindConditional: "Conditional",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Node is a node of the query-operator tree. Nodes are never mutated after construction.
type Node interface {
	Kind() Kind
	String() string
	sealed()
}

// Constant is a literal value. A nil Value is the null literal.
// Type optionally names the declared type of the value (for example an entity type name).
type Constant struct {
	Value interface{}
	Type  string
}

// QueryRoot is the constant denoting a queryable source of entities.
type QueryRoot struct {
	ElementType string
}

// Parameter is a lambda parameter. References inside a lambda body use the same pointer
// as the declaration in Lambda.Params; identity, not name, binds them.
type Parameter struct {
	Name string
	Type string
}

// Lambda is an anonymous function bound to an operator argument.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// Member reads a named member (property or navigation) from Target.
type Member struct {
	Target Node
	Name   string
}

// Call is a method call. Query-pipeline operators are static calls whose first argument is
// the source sequence. Object is non-nil only for instance calls.
type Call struct {
	Op      Operator
	Name    string
	Object  Node
	Args    []Node
	TypeArg string
}

// Binary is a binary operator application.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Unary is a unary operator application. Type names the conversion target for Convert/TypeAs.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Type    string
}

// Composite builds a tuple or anonymous object from its elements. Names is either empty
// (positional tuple) or parallel to Elements.
type Composite struct {
	Names    []string
	Elements []Node
}

// Conditional is a ternary expression.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
}

func (*Constant) Kind() Kind    { return KindConstant }
func (*QueryRoot) Kind() Kind   { return KindQueryRoot }
func (*Parameter) Kind() Kind   { return KindParameter }
func (*Lambda) Kind() Kind      { return KindLambda }
func (*Member) Kind() Kind      { return KindMember }
func (*Call) Kind() Kind        { return KindCall }
func (*Binary) Kind() Kind      { return KindBinary }
func (*Unary) Kind() Kind       { return KindUnary }
func (*Composite) Kind() Kind   { return KindComposite }
func (*Conditional) Kind() Kind { return KindConditional }

func (*Constant) sealed()    {}
func (*QueryRoot) sealed()   {}
func (*Parameter) sealed()   {}
func (*Lambda) sealed()      {}
func (*Member) sealed()      {}
func (*Call) sealed()        {}
func (*Binary) sealed()      {}
func (*Unary) sealed()       {}
func (*Composite) sealed()   {}
func (*Conditional) sealed() {}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	Equal BinaryOp = iota
	NotEqual
	AndAlso
	OrElse
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	Add
	Subtract
	Multiply
	Divide
	Coalesce
)

var binaryOps = [...]struct {
	name   string
	symbol string
}{
	Equal:              {"Equal", "=="},
	NotEqual:           {"NotEqual", "!="},
	AndAlso:            {"AndAlso", "&&"},
	OrElse:             {"OrElse", "||"},
	LessThan:           {"LessThan", "<"},
	LessThanOrEqual:    {"LessThanOrEqual", "<="},
	GreaterThan:        {"GreaterThan", ">"},
	GreaterThanOrEqual: {"GreaterThanOrEqual", ">="},
	Add:                {"Add", "+"},
	Subtract:           {"Subtract", "-"},
	Multiply:           {"Multiply", "*"},
	Divide:             {"Divide", "/"},
	Coalesce:           {"Coalesce", "??"},
}

func (op BinaryOp) String() string {
	if op < 0 || int(op) >= len(binaryOps) {
		return "Unknown"
	}
	return binaryOps[op].name
}

// Symbol returns the infix symbol used by the printer.
func (op BinaryOp) Symbol() string {
	if op < 0 || int(op) >= len(binaryOps) {
		return "?"
	}
	return binaryOps[op].symbol
}

// IsEquality reports whether op is Equal or NotEqual.
func (op BinaryOp) IsEquality() bool {
	return op == Equal || op == NotEqual
}

// ParseBinaryOp resolves a binary operator by name or symbol.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	for i, b := range binaryOps {
		if b.name == s || b.symbol == s {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	Convert UnaryOp = iota
	TypeAs
	Not
	Negate
)

var unaryOpNames = [...]string{
	Convert: "Convert",
	TypeAs:  "TypeAs",
	Not:     "Not",
	Negate:  "Negate",
}

func (op UnaryOp) String() string {
	if op < 0 || int(op) >= len(unaryOpNames) {
		return "Unknown"
	}
	return unaryOpNames[op]
}

// ParseUnaryOp resolves a unary operator by name.
func ParseUnaryOp(s string) (UnaryOp, bool) {
	for i, name := range unaryOpNames {
		if name == s {
			return UnaryOp(i), true
		}
	}
	return 0, false
}
