package rewrite

import (
	"log/slog"

	"github.com/nlstn/go-entityquery/internal/expr"
)

// visitor is the state of one pass.
type visitor struct {
	model    Model
	maxDepth int
	logger   *slog.Logger

	t     tracker
	depth int
	stats Stats
}

func (v *visitor) visit(n expr.Node) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}

	v.depth++
	defer func() { v.depth-- }()
	if v.depth > v.maxDepth {
		return nil, newTranslationError(ErrCodeMaxDepthExceeded, "", "query tree is nested deeper than %d levels", v.maxDepth)
	}

	switch n := n.(type) {
	case *expr.Constant:
		return v.visitConstant(n), nil
	case *expr.QueryRoot:
		v.t.setCurrentType(entityFlow(v.model.FindEntityType(n.ElementType)))
		return n, nil
	case *expr.Parameter:
		v.t.setCurrentType(v.t.parameterType(n))
		return n, nil
	case *expr.Lambda:
		return v.visitLambda(n)
	case *expr.Member:
		return v.visitMember(n)
	case *expr.Call:
		return v.visitCall(n)
	case *expr.Binary:
		return v.visitBinary(n)
	case *expr.Unary:
		return v.visitUnary(n)
	case *expr.Composite:
		return v.visitComposite(n)
	case *expr.Conditional:
		return v.visitConditional(n)
	default:
		return nil, newTranslationError(ErrCodeUnsupportedNode, n.Kind().String(), "cannot rewrite node %T", n)
	}
}

// visitConstant flows the declared entity type of a non-null constant. Other constants
// leave the ambient flow untouched.
func (v *visitor) visitConstant(c *expr.Constant) expr.Node {
	if c.Value != nil && c.Type != "" {
		if entity := v.model.FindEntityType(c.Type); entity != nil {
			v.t.setCurrentType(entityFlow(entity))
		}
	}
	return c
}

// visitLambda walks a lambda that no operator bound: its parameters stay unbound.
func (v *visitor) visitLambda(l *expr.Lambda) (expr.Node, error) {
	saved := v.t.saveScope()
	body, err := v.visit(l.Body)
	v.t.popScope(saved, false)
	if err != nil {
		return nil, err
	}
	v.t.setCurrentType(nil)
	if body == l.Body {
		return l, nil
	}
	return &expr.Lambda{Params: l.Params, Body: body}, nil
}

func (v *visitor) visitMember(m *expr.Member) (expr.Node, error) {
	target, err := v.visit(m.Target)
	if err != nil {
		return nil, err
	}
	v.navigate(target, m.Name)
	if target == m.Target {
		return m, nil
	}
	return &expr.Member{Target: target, Name: m.Name}, nil
}

// navigate moves the ambient flow across the navigation called name, read from the
// already visited source.
func (v *visitor) navigate(source expr.Node, name string) {
	from := v.t.currentType()
	if from == nil {
		return
	}
	nav := v.model.FindNavigation(from.entity, name)
	if nav == nil {
		v.t.setCurrentType(nil)
		return
	}
	target := v.model.NavigationTarget(nav)
	if target == nil {
		v.t.setCurrentType(nil)
		return
	}
	v.t.setCurrentType(&flow{entity: target, nav: nav, source: source, parent: from})
}

func (v *visitor) visitCall(c *expr.Call) (expr.Node, error) {
	switch {
	case c.Op == expr.OpReferenceEquals && c.Object == nil && len(c.Args) == 2:
		return v.visitEquality(c, true, c.Args[0], c.Args[1], func(left, right expr.Node) expr.Node {
			return c.WithArgs(nil, []expr.Node{left, right})
		})
	case c.Op == expr.OpEquals && c.Object != nil && len(c.Args) == 1:
		return v.visitEquality(c, true, c.Object, c.Args[0], func(left, right expr.Node) expr.Node {
			return c.WithArgs(left, []expr.Node{right})
		})
	case c.Op == expr.OpProperty && c.Object == nil && len(c.Args) == 2:
		if name, ok := propertyName(c.Args[1]); ok {
			return v.visitPropertyCall(c, name)
		}
	case c.Object == nil && c.Op.IsQueryOperator() && len(c.Args) > 0:
		return v.visitQueryOperator(c)
	}
	return v.visitOpaqueCall(c)
}

func propertyName(n expr.Node) (string, bool) {
	c, ok := n.(*expr.Constant)
	if !ok {
		return "", false
	}
	name, ok := c.Value.(string)
	return name, ok
}

// visitPropertyCall handles Property(e, "Name") like the member access e.Name.
func (v *visitor) visitPropertyCall(c *expr.Call, name string) (expr.Node, error) {
	target, err := v.visit(c.Args[0])
	if err != nil {
		return nil, err
	}
	v.navigate(target, name)
	if target == c.Args[0] {
		return c, nil
	}
	return c.WithArgs(nil, []expr.Node{target, c.Args[1]}), nil
}

func (v *visitor) visitQueryOperator(c *expr.Call) (expr.Node, error) {
	p := classify(c)
	if p == policyOpaque {
		return v.visitOpaqueCall(c)
	}

	lambdas := c.Lambdas()
	if len(lambdas) > 1 {
		return nil, newTranslationError(ErrCodeUnsupportedQueryShape, c.Name,
			"%s operator %s takes %d lambda arguments, expected at most one", p, c.Name, len(lambdas))
	}

	v.t.setCurrentType(nil)
	source, err := v.visit(c.Args[0])
	if err != nil {
		return nil, err
	}
	sourceFlow := v.t.currentType().withoutNavigation()
	if (c.Op == expr.OpOfType || c.Op == expr.OpCast) && c.TypeArg != "" {
		if entity := v.model.FindEntityType(c.TypeArg); entity != nil {
			sourceFlow = entityFlow(entity)
		}
	}

	args := make([]expr.Node, len(c.Args))
	args[0] = source
	changed := source != c.Args[0]
	var bodyFlow *flow

	for i := 1; i < len(c.Args); i++ {
		arg := c.Args[i]
		var visited expr.Node
		if l, ok := arg.(*expr.Lambda); ok {
			if len(l.Params) != 1 {
				return nil, newTranslationError(ErrCodeUnsupportedQueryShape, c.Name,
					"lambda argument of %s declares %d parameters, expected one", c.Name, len(l.Params))
			}
			saved := v.t.pushScope(l.Params[0], sourceFlow)
			body, err := v.visit(l.Body)
			if err != nil {
				return nil, err
			}
			bodyFlow = v.t.currentType()
			v.t.popScope(saved, p == policyProjecting)
			if body == l.Body {
				visited = l
			} else {
				visited = &expr.Lambda{Params: l.Params, Body: body}
			}
		} else {
			v.t.setCurrentType(nil)
			visited, err = v.visit(arg)
			if err != nil {
				return nil, err
			}
		}
		args[i] = visited
		changed = changed || visited != arg
	}

	switch p {
	case policyPassThrough:
		v.t.setCurrentType(sourceFlow)
	case policyProjecting:
		v.t.setCurrentType(bodyFlow.withoutNavigation())
	default:
		v.t.setCurrentType(nil)
	}

	if !changed {
		return c, nil
	}
	return c.WithArgs(nil, args), nil
}

// visitOpaqueCall walks every operand without binding lambdas. The result flows nothing.
func (v *visitor) visitOpaqueCall(c *expr.Call) (expr.Node, error) {
	var object expr.Node
	var err error
	changed := false
	if c.Object != nil {
		object, err = v.visit(c.Object)
		if err != nil {
			return nil, err
		}
		changed = object != c.Object
	}

	args, argsChanged, err := v.visitAll(c.Args)
	if err != nil {
		return nil, err
	}
	v.t.setCurrentType(nil)

	if !changed && !argsChanged {
		return c, nil
	}
	return c.WithArgs(object, args), nil
}

// visitAll visits nodes in order, resetting the ambient flow before each one.
func (v *visitor) visitAll(nodes []expr.Node) ([]expr.Node, bool, error) {
	result := make([]expr.Node, len(nodes))
	changed := false
	for i, n := range nodes {
		v.t.setCurrentType(nil)
		visited, err := v.visit(n)
		if err != nil {
			return nil, false, err
		}
		result[i] = visited
		changed = changed || visited != n
	}
	return result, changed, nil
}

func (v *visitor) visitBinary(b *expr.Binary) (expr.Node, error) {
	if b.Op.IsEquality() {
		return v.visitEquality(b, b.Op == expr.Equal, b.Left, b.Right, func(left, right expr.Node) expr.Node {
			return &expr.Binary{Op: b.Op, Left: left, Right: right}
		})
	}

	operands, changed, err := v.visitAll([]expr.Node{b.Left, b.Right})
	if err != nil {
		return nil, err
	}
	v.t.setCurrentType(nil)
	if !changed {
		return b, nil
	}
	return &expr.Binary{Op: b.Op, Left: operands[0], Right: operands[1]}, nil
}

// visitUnary keeps the operand's flow across conversions. A conversion to a registered
// entity type flows that type.
func (v *visitor) visitUnary(u *expr.Unary) (expr.Node, error) {
	operand, err := v.visit(u.Operand)
	if err != nil {
		return nil, err
	}

	switch u.Op {
	case expr.Convert, expr.TypeAs:
		if f := v.t.currentType(); f != nil && u.Type != "" {
			if entity := v.model.FindEntityType(u.Type); entity != nil && entity != f.entity {
				v.t.setCurrentType(&flow{entity: entity, nav: f.nav, source: f.source, parent: f.parent})
			}
		}
	default:
		v.t.setCurrentType(nil)
	}

	if operand == u.Operand {
		return u, nil
	}
	return &expr.Unary{Op: u.Op, Operand: operand, Type: u.Type}, nil
}

// visitComposite walks the elements of a tuple or anonymous object. Composites flow
// nothing, so comparisons against their members are left as they are.
func (v *visitor) visitComposite(c *expr.Composite) (expr.Node, error) {
	elements, changed, err := v.visitAll(c.Elements)
	if err != nil {
		return nil, err
	}
	v.t.setCurrentType(nil)
	if !changed {
		return c, nil
	}
	return &expr.Composite{Names: c.Names, Elements: elements}, nil
}

func (v *visitor) visitConditional(c *expr.Conditional) (expr.Node, error) {
	parts, changed, err := v.visitAll([]expr.Node{c.Test, c.IfTrue, c.IfFalse})
	if err != nil {
		return nil, err
	}
	v.t.setCurrentType(nil)
	if !changed {
		return c, nil
	}
	return &expr.Conditional{Test: parts[0], IfTrue: parts[1], IfFalse: parts[2]}, nil
}
