package entityquery

import (
	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/querydoc"
)

// Tree node types. Nodes are immutable; a rewrite returns a new tree sharing every
// unchanged subtree with its input.
type (
	Node        = expr.Node
	Constant    = expr.Constant
	QueryRoot   = expr.QueryRoot
	Parameter   = expr.Parameter
	Lambda      = expr.Lambda
	Member      = expr.Member
	Call        = expr.Call
	Binary      = expr.Binary
	Unary       = expr.Unary
	Composite   = expr.Composite
	Conditional = expr.Conditional
	Operator    = expr.Operator
)

// Tree constructors.
var (
	Const           = expr.Const
	TypedConst      = expr.TypedConst
	Null            = expr.Null
	True            = expr.True
	False           = expr.False
	Root            = expr.Root
	Param           = expr.Param
	Fn              = expr.Fn
	Prop            = expr.Prop
	Eq              = expr.Eq
	Ne              = expr.Ne
	And             = expr.And
	Or              = expr.Or
	Lt              = expr.Lt
	Gt              = expr.Gt
	ConvertTo       = expr.ConvertTo
	NotOf           = expr.NotOf
	Tuple           = expr.Tuple
	Object          = expr.Object
	If              = expr.If
	MethodCall      = expr.MethodCall
	InstanceCall    = expr.InstanceCall
	GenericCall     = expr.GenericCall
	Where           = expr.Where
	Select          = expr.Select
	SelectMany      = expr.SelectMany
	Any             = expr.Any
	OrderBy         = expr.OrderBy
	FirstOrDefault  = expr.FirstOrDefault
	Take            = expr.Take
	Skip            = expr.Skip
	Count           = expr.Count
	OfType          = expr.OfType
	Join            = expr.Join
	ReferenceEquals = expr.ReferenceEquals
	EqualsCall      = expr.EqualsCall
	PropertyOf      = expr.PropertyOf
)

// Fingerprint returns a stable hexadecimal hash of the printed tree.
func Fingerprint(tree Node) string {
	return expr.FingerprintHex(tree)
}

// LoadQuery reads a YAML query document.
func LoadQuery(path string) (Node, error) {
	return querydoc.LoadFile(path)
}

// MarshalQuery renders tree as a YAML query document.
func MarshalQuery(tree Node) ([]byte, error) {
	return querydoc.Marshal(tree)
}

// UnmarshalQuery decodes a YAML query document.
func UnmarshalQuery(data []byte) (Node, error) {
	return querydoc.Unmarshal(data)
}
