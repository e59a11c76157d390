package querydoc

import (
	"bytes"
	"encoding"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/nlstn/go-entityquery/internal/expr"
	"gopkg.in/yaml.v3"
)

// maxValueDepth bounds nesting of encoded constant values, which may hold cyclic entity graphs.
const maxValueDepth = 32

// Encode writes tree to w as a query document.
func Encode(w io.Writer, tree expr.Node) error {
	e := &treeEncoder{}
	n, err := e.node(tree)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(mapping("query", n)); err != nil {
		return fmt.Errorf("failed to encode query document: %w", err)
	}
	return enc.Close()
}

// Marshal returns tree as a query document.
func Marshal(tree expr.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type treeEncoder struct {
	scopes [][]*expr.Parameter
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// mapping builds a mapping node from alternating keys and values.
func mapping(pairs ...interface{}) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Content = append(m.Content, scalar(pairs[i].(string)), pairs[i+1].(*yaml.Node))
	}
	return m
}

func sequence(items []*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}
}

func (e *treeEncoder) node(n expr.Node) (*yaml.Node, error) {
	switch n := n.(type) {
	case *expr.QueryRoot:
		return mapping("root", scalar(n.ElementType)), nil
	case *expr.Parameter:
		if err := e.checkScope(n); err != nil {
			return nil, err
		}
		return mapping("param", scalar(n.Name)), nil
	case *expr.Constant:
		return e.constant(n)
	case *expr.Member:
		if path, p, ok := memberPath(n); ok {
			if err := e.checkScope(p); err != nil {
				return nil, err
			}
			return mapping("path", scalar(path)), nil
		}
		target, err := e.node(n.Target)
		if err != nil {
			return nil, err
		}
		return mapping("member", scalar(n.Name), "of", target), nil
	case *expr.Call:
		return e.call(n)
	case *expr.Lambda:
		return e.lambda(n)
	case *expr.Binary:
		left, err := e.node(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.node(n.Right)
		if err != nil {
			return nil, err
		}
		op := scalar(n.Op.Symbol())
		op.Style = yaml.DoubleQuotedStyle
		return mapping("binary", op, "left", left, "right", right), nil
	case *expr.Unary:
		operand, err := e.node(n.Operand)
		if err != nil {
			return nil, err
		}
		m := mapping("unary", scalar(n.Op.String()), "operand", operand)
		if n.Type != "" {
			m.Content = append(m.Content, scalar("type"), scalar(n.Type))
		}
		return m, nil
	case *expr.Composite:
		return e.composite(n)
	case *expr.Conditional:
		parts := make([]*yaml.Node, 3)
		for i, child := range []expr.Node{n.Test, n.IfTrue, n.IfFalse} {
			part, err := e.node(child)
			if err != nil {
				return nil, err
			}
			parts[i] = part
		}
		return mapping("if", parts[0], "then", parts[1], "else", parts[2]), nil
	case nil:
		return nil, fmt.Errorf("cannot encode a nil node")
	default:
		return nil, fmt.Errorf("cannot encode node %T", n)
	}
}

// memberPath renders a member chain rooted at a parameter as p.A.B.
func memberPath(m *expr.Member) (string, *expr.Parameter, bool) {
	names := []string{m.Name}
	target := m.Target
	for {
		switch t := target.(type) {
		case *expr.Member:
			if strings.Contains(t.Name, ".") {
				return "", nil, false
			}
			names = append(names, t.Name)
			target = t.Target
		case *expr.Parameter:
			if strings.Contains(m.Name, ".") {
				return "", nil, false
			}
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
			return t.Name + "." + strings.Join(names, "."), t, true
		default:
			return "", nil, false
		}
	}
}

// checkScope fails when p would not bind to itself once decoded.
func (e *treeEncoder) checkScope(p *expr.Parameter) error {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		for _, declared := range e.scopes[i] {
			if declared.Name != p.Name {
				continue
			}
			if declared != p {
				return fmt.Errorf("parameter %s is shadowed by another parameter of the same name", p.Name)
			}
			return nil
		}
	}
	return fmt.Errorf("parameter %s is not declared by an enclosing lambda", p.Name)
}

func (e *treeEncoder) call(c *expr.Call) (*yaml.Node, error) {
	name := c.Name
	if name == "" {
		name = c.Op.String()
	}
	m := mapping("call", scalar(name))
	if c.TypeArg != "" {
		m.Content = append(m.Content, scalar("type"), scalar(c.TypeArg))
	}
	if c.Object != nil {
		object, err := e.node(c.Object)
		if err != nil {
			return nil, err
		}
		m.Content = append(m.Content, scalar("object"), object)
	}
	if len(c.Args) > 0 {
		args := make([]*yaml.Node, len(c.Args))
		for i, arg := range c.Args {
			n, err := e.node(arg)
			if err != nil {
				return nil, err
			}
			args[i] = n
		}
		m.Content = append(m.Content, scalar("args"), sequence(args))
	}
	return m, nil
}

func (e *treeEncoder) lambda(l *expr.Lambda) (*yaml.Node, error) {
	names := make([]*yaml.Node, len(l.Params))
	seen := make(map[string]bool, len(l.Params))
	for i, p := range l.Params {
		if seen[p.Name] {
			return nil, fmt.Errorf("lambda declares %s twice", p.Name)
		}
		seen[p.Name] = true
		names[i] = scalar(p.Name)
	}
	params := sequence(names)
	params.Style = yaml.FlowStyle

	e.scopes = append(e.scopes, l.Params)
	body, err := e.node(l.Body)
	e.scopes = e.scopes[:len(e.scopes)-1]
	if err != nil {
		return nil, err
	}
	return mapping("lambda", params, "body", body), nil
}

func (e *treeEncoder) composite(c *expr.Composite) (*yaml.Node, error) {
	elements := make([]*yaml.Node, len(c.Elements))
	for i, el := range c.Elements {
		n, err := e.node(el)
		if err != nil {
			return nil, err
		}
		elements[i] = n
	}
	if len(c.Names) == 0 {
		return mapping("tuple", sequence(elements)), nil
	}
	object := &yaml.Node{Kind: yaml.MappingNode}
	for i, name := range c.Names {
		object.Content = append(object.Content, scalar(name), elements[i])
	}
	return mapping("object", object), nil
}

func (e *treeEncoder) constant(c *expr.Constant) (*yaml.Node, error) {
	value, err := encodeValue(reflect.ValueOf(c.Value), 0)
	if err != nil {
		return nil, err
	}
	m := mapping("const", value)
	if c.Type != "" {
		m.Content = append(m.Content, scalar("type"), scalar(c.Type))
	}
	return m, nil
}

var (
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	yamlMarshalerType = reflect.TypeOf((*yaml.Marshaler)(nil)).Elem()
)

func marshalsItself(t reflect.Type) bool {
	return t.Implements(textMarshalerType) || t.Implements(yamlMarshalerType) ||
		reflect.PtrTo(t).Implements(textMarshalerType) || reflect.PtrTo(t).Implements(yamlMarshalerType)
}

// encodeValue writes struct values with their Go field names, so members of a decoded
// constant are read under the same names as members of the original value.
func encodeValue(v reflect.Value, depth int) (*yaml.Node, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("constant value is nested deeper than %d levels", maxValueDepth)
	}
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}

	if !marshalsItself(v.Type()) {
		switch v.Kind() {
		case reflect.Struct:
			m := &yaml.Node{Kind: yaml.MappingNode}
			if err := encodeFields(m, v, depth); err != nil {
				return nil, err
			}
			return m, nil
		case reflect.Map:
			if v.Type().Key().Kind() == reflect.String {
				keys := v.MapKeys()
				sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
				m := &yaml.Node{Kind: yaml.MappingNode}
				for _, k := range keys {
					value, err := encodeValue(v.MapIndex(k), depth+1)
					if err != nil {
						return nil, err
					}
					m.Content = append(m.Content, scalar(k.String()), value)
				}
				return m, nil
			}
		case reflect.Slice, reflect.Array:
			if v.Type().Elem().Kind() != reflect.Uint8 {
				items := make([]*yaml.Node, v.Len())
				for i := range items {
					item, err := encodeValue(v.Index(i), depth+1)
					if err != nil {
						return nil, err
					}
					items[i] = item
				}
				return sequence(items), nil
			}
		}
	}

	n := &yaml.Node{}
	if err := n.Encode(v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to encode constant of type %s: %w", v.Type(), err)
	}
	return n, nil
}

func encodeFields(m *yaml.Node, v reflect.Value, depth int) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct && !marshalsItself(field.Type) {
			if err := encodeFields(m, v.Field(i), depth); err != nil {
				return err
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		value, err := encodeValue(v.Field(i), depth+1)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, scalar(field.Name), value)
	}
	return nil
}
