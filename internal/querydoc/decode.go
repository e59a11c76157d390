// Package querydoc reads and writes query trees as YAML documents.
//
// A document holds one tree under the query key. Each node is a mapping whose first
// recognised key selects its kind:
//
//	query:
//	  call: Where
//	  args:
//	    - root: Order
//	    - lambda: [o]
//	      body:
//	        binary: "=="
//	        left: {path: o.Customer}
//	        right: {const: null}
//
// Kinds: root, param, path (a parameter followed by member names), const (with optional
// type), member (with of), call (with args, object, type), lambda (parameter names, with
// body), binary (with left, right), unary (with operand, type), tuple, object and if
// (with then, else). Parameter names are lexically scoped: a reference binds to the
// innermost enclosing lambda declaring that name.
package querydoc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nlstn/go-entityquery/internal/expr"
	"gopkg.in/yaml.v3"
)

// document is the top-level YAML shape.
type document struct {
	Query yaml.Node `yaml:"query"`
}

// Decode reads a query document from r.
func Decode(r io.Reader) (expr.Node, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("query document is empty")
		}
		return nil, fmt.Errorf("failed to decode query document: %w", err)
	}
	if doc.Query.Kind == 0 {
		return nil, fmt.Errorf("query document has no query")
	}
	d := &treeDecoder{}
	return d.node(&doc.Query)
}

// Unmarshal decodes a query document held in data.
func Unmarshal(data []byte) (expr.Node, error) {
	return Decode(strings.NewReader(string(data)))
}

// LoadFile reads a query document from path.
func LoadFile(path string) (expr.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query %s: %w", path, err)
	}
	defer f.Close()

	tree, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

var nodeKinds = []string{"root", "param", "path", "const", "member", "call", "lambda", "binary", "unary", "tuple", "object", "if"}

type treeDecoder struct {
	scopes []map[string]*expr.Parameter
}

func errorAt(n *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

// fields indexes the keys of a mapping node.
func fields(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "expected a mapping node")
	}
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if _, dup := m[key]; dup {
			return nil, errorAt(n.Content[i], "duplicate key %q", key)
		}
		m[key] = n.Content[i+1]
	}
	return m, nil
}

func (d *treeDecoder) node(n *yaml.Node) (expr.Node, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	f, err := fields(n)
	if err != nil {
		return nil, err
	}

	kind := ""
	for _, k := range nodeKinds {
		if _, ok := f[k]; ok {
			if kind != "" {
				return nil, errorAt(n, "node has both %s and %s", kind, k)
			}
			kind = k
		}
	}

	switch kind {
	case "root":
		return expr.Root(f["root"].Value), nil
	case "param":
		p, err := d.lookup(f["param"], f["param"].Value)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "path":
		return d.path(f["path"])
	case "const":
		return d.constant(f)
	case "member":
		if f["of"] == nil {
			return nil, errorAt(n, "member %s has no of", f["member"].Value)
		}
		target, err := d.node(f["of"])
		if err != nil {
			return nil, err
		}
		return &expr.Member{Target: target, Name: f["member"].Value}, nil
	case "call":
		return d.call(f)
	case "lambda":
		return d.lambda(n, f)
	case "binary":
		return d.binary(f)
	case "unary":
		return d.unary(n, f)
	case "tuple":
		elements, err := d.list(f["tuple"])
		if err != nil {
			return nil, err
		}
		return expr.Tuple(elements...), nil
	case "object":
		return d.object(f["object"])
	case "if":
		return d.conditional(n, f)
	default:
		return nil, errorAt(n, "unknown node, expected one of %s", strings.Join(nodeKinds, ", "))
	}
}

func (d *treeDecoder) lookup(n *yaml.Node, name string) (*expr.Parameter, error) {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if p, ok := d.scopes[i][name]; ok {
			return p, nil
		}
	}
	return nil, errorAt(n, "parameter %s is not declared by an enclosing lambda", name)
}

func (d *treeDecoder) path(n *yaml.Node) (expr.Node, error) {
	parts := strings.Split(n.Value, ".")
	p, err := d.lookup(n, parts[0])
	if err != nil {
		return nil, err
	}
	var result expr.Node = p
	for _, name := range parts[1:] {
		if name == "" {
			return nil, errorAt(n, "empty member name in path %q", n.Value)
		}
		result = &expr.Member{Target: result, Name: name}
	}
	return result, nil
}

func (d *treeDecoder) constant(f map[string]*yaml.Node) (expr.Node, error) {
	var value interface{}
	if err := f["const"].Decode(&value); err != nil {
		return nil, errorAt(f["const"], "invalid constant: %v", err)
	}
	typeName := ""
	if t := f["type"]; t != nil {
		typeName = t.Value
	}
	return expr.TypedConst(value, typeName), nil
}

func (d *treeDecoder) list(n *yaml.Node) ([]expr.Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "expected a list of nodes")
	}
	result := make([]expr.Node, len(n.Content))
	for i, item := range n.Content {
		node, err := d.node(item)
		if err != nil {
			return nil, err
		}
		result[i] = node
	}
	return result, nil
}

func (d *treeDecoder) call(f map[string]*yaml.Node) (expr.Node, error) {
	name := f["call"].Value
	c := &expr.Call{Op: expr.ParseOperator(name), Name: name}
	if t := f["type"]; t != nil {
		c.TypeArg = t.Value
	}
	if object := f["object"]; object != nil {
		node, err := d.node(object)
		if err != nil {
			return nil, err
		}
		c.Object = node
	}
	if args := f["args"]; args != nil {
		nodes, err := d.list(args)
		if err != nil {
			return nil, err
		}
		c.Args = nodes
	}
	return c, nil
}

func (d *treeDecoder) lambda(n *yaml.Node, f map[string]*yaml.Node) (expr.Node, error) {
	var names []string
	if err := f["lambda"].Decode(&names); err != nil {
		return nil, errorAt(f["lambda"], "lambda parameters must be a list of names")
	}
	if f["body"] == nil {
		return nil, errorAt(n, "lambda has no body")
	}

	scope := make(map[string]*expr.Parameter, len(names))
	params := make([]*expr.Parameter, len(names))
	for i, name := range names {
		if _, dup := scope[name]; dup {
			return nil, errorAt(f["lambda"], "lambda declares %s twice", name)
		}
		params[i] = expr.Param(name)
		scope[name] = params[i]
	}

	d.scopes = append(d.scopes, scope)
	body, err := d.node(f["body"])
	d.scopes = d.scopes[:len(d.scopes)-1]
	if err != nil {
		return nil, err
	}
	return expr.Fn(body, params...), nil
}

func (d *treeDecoder) binary(f map[string]*yaml.Node) (expr.Node, error) {
	op, ok := expr.ParseBinaryOp(f["binary"].Value)
	if !ok {
		return nil, errorAt(f["binary"], "unknown binary operator %q", f["binary"].Value)
	}
	if f["left"] == nil || f["right"] == nil {
		return nil, errorAt(f["binary"], "binary %s needs left and right", f["binary"].Value)
	}
	left, err := d.node(f["left"])
	if err != nil {
		return nil, err
	}
	right, err := d.node(f["right"])
	if err != nil {
		return nil, err
	}
	return &expr.Binary{Op: op, Left: left, Right: right}, nil
}

func (d *treeDecoder) unary(n *yaml.Node, f map[string]*yaml.Node) (expr.Node, error) {
	op, ok := expr.ParseUnaryOp(f["unary"].Value)
	if !ok {
		return nil, errorAt(f["unary"], "unknown unary operator %q", f["unary"].Value)
	}
	if f["operand"] == nil {
		return nil, errorAt(n, "unary %s has no operand", f["unary"].Value)
	}
	operand, err := d.node(f["operand"])
	if err != nil {
		return nil, err
	}
	u := &expr.Unary{Op: op, Operand: operand}
	if t := f["type"]; t != nil {
		u.Type = t.Value
	}
	return u, nil
}

func (d *treeDecoder) object(n *yaml.Node) (expr.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "object members must be a mapping")
	}
	var names []string
	var elements []expr.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		element, err := d.node(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		names = append(names, n.Content[i].Value)
		elements = append(elements, element)
	}
	return expr.Object(names, elements), nil
}

func (d *treeDecoder) conditional(n *yaml.Node, f map[string]*yaml.Node) (expr.Node, error) {
	if f["then"] == nil || f["else"] == nil {
		return nil, errorAt(n, "if needs then and else")
	}
	parts := make([]expr.Node, 3)
	for i, key := range []string{"if", "then", "else"} {
		node, err := d.node(f[key])
		if err != nil {
			return nil, err
		}
		parts[i] = node
	}
	return expr.If(parts[0], parts[1], parts[2]), nil
}
