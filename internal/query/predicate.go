package query

import (
	"reflect"

	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
	"gorm.io/gorm/clause"
)

var (
	alwaysTrue  = clause.Expr{SQL: "1 = 1"}
	alwaysFalse = clause.Expr{SQL: "1 = 0"}
)

func boolExpr(b bool) clause.Expression {
	if b {
		return alwaysTrue
	}
	return alwaysFalse
}

// operand is one side of a comparison: a column, a value or a tuple of operands.
type operand struct {
	column *clause.Column
	value  interface{}
	tuple  []operand
}

func (o operand) isTuple() bool { return o.tuple != nil }

func (b *Builder) predicate(entity *metadata.EntityMetadata, param *expr.Parameter, n expr.Node) (clause.Expression, error) {
	n = expr.StripConvert(n)
	switch n := n.(type) {
	case *expr.Constant:
		if v, ok := n.Value.(bool); ok {
			return boolExpr(v), nil
		}
		return nil, unsupported("non-boolean constant %s in predicate", n)
	case *expr.Unary:
		if n.Op != expr.Not {
			return nil, unsupported("unary %s in predicate", n.Op)
		}
		inner, err := b.predicate(entity, param, n.Operand)
		if err != nil {
			return nil, err
		}
		return clause.Not(inner), nil
	case *expr.Binary:
		switch n.Op {
		case expr.AndAlso, expr.OrElse:
			left, err := b.predicate(entity, param, n.Left)
			if err != nil {
				return nil, err
			}
			right, err := b.predicate(entity, param, n.Right)
			if err != nil {
				return nil, err
			}
			if n.Op == expr.AndAlso {
				return clause.And(left, right), nil
			}
			return clause.Or(left, right), nil
		case expr.Equal, expr.NotEqual, expr.LessThan, expr.LessThanOrEqual, expr.GreaterThan, expr.GreaterThanOrEqual:
			left, err := b.operand(entity, param, n.Left)
			if err != nil {
				return nil, err
			}
			right, err := b.operand(entity, param, n.Right)
			if err != nil {
				return nil, err
			}
			return compare(n.Op, left, right)
		default:
			return nil, unsupported("operator %s in predicate", n.Op.Symbol())
		}
	case *expr.Member, *expr.Call:
		column, ok, err := b.column(entity, param, n)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, unsupported("cannot use %s as a condition", n)
		}
		return clause.Eq{Column: column, Value: true}, nil
	default:
		return nil, unsupported("%s node in predicate", n.Kind())
	}
}

func (b *Builder) operand(entity *metadata.EntityMetadata, param *expr.Parameter, n expr.Node) (operand, error) {
	n = expr.StripConvert(n)
	if c, ok := n.(*expr.Composite); ok && len(c.Names) == 0 {
		parts := make([]operand, len(c.Elements))
		for i, el := range c.Elements {
			part, err := b.operand(entity, param, el)
			if err != nil {
				return operand{}, err
			}
			parts[i] = part
		}
		return operand{tuple: parts}, nil
	}

	column, ok, err := b.column(entity, param, n)
	if err != nil {
		return operand{}, err
	}
	if ok {
		return operand{column: &column}, nil
	}
	value, err := evaluate(n)
	if err != nil {
		return operand{}, err
	}
	return operand{value: value}, nil
}

func compare(op expr.BinaryOp, left, right operand) (clause.Expression, error) {
	if left.isTuple() || right.isTuple() {
		if !left.isTuple() || !right.isTuple() || len(left.tuple) != len(right.tuple) {
			return nil, unsupported("tuple compared with a value of another shape")
		}
		if !op.IsEquality() {
			return nil, unsupported("tuples only support == and !=")
		}
		parts := make([]clause.Expression, len(left.tuple))
		for i := range left.tuple {
			part, err := compare(op, left.tuple[i], right.tuple[i])
			if err != nil {
				return nil, err
			}
			parts[i] = part
		}
		if op == expr.Equal {
			return clause.And(parts...), nil
		}
		return clause.Or(parts...), nil
	}

	if left.column == nil && right.column != nil {
		left, right = right, left
		op = flip(op)
	}

	switch {
	case left.column == nil:
		if op.IsEquality() {
			return boolExpr(reflect.DeepEqual(left.value, right.value) == (op == expr.Equal)), nil
		}
		if left.value == nil || right.value == nil {
			return alwaysFalse, nil
		}
		return clause.Expr{SQL: "? " + sqlSymbol(op) + " ?", Vars: []interface{}{left.value, right.value}}, nil
	case right.column != nil:
		return clause.Expr{SQL: "? " + sqlSymbol(op) + " ?", Vars: []interface{}{*left.column, *right.column}}, nil
	}

	column := *left.column
	value := right.value
	switch op {
	case expr.Equal:
		return clause.Eq{Column: column, Value: value}, nil
	case expr.NotEqual:
		return clause.Neq{Column: column, Value: value}, nil
	}
	if value == nil {
		return nil, unsupported("ordering comparison with null")
	}
	switch op {
	case expr.LessThan:
		return clause.Lt{Column: column, Value: value}, nil
	case expr.LessThanOrEqual:
		return clause.Lte{Column: column, Value: value}, nil
	case expr.GreaterThan:
		return clause.Gt{Column: column, Value: value}, nil
	default:
		return clause.Gte{Column: column, Value: value}, nil
	}
}

// flip mirrors op for swapped operands.
func flip(op expr.BinaryOp) expr.BinaryOp {
	switch op {
	case expr.LessThan:
		return expr.GreaterThan
	case expr.LessThanOrEqual:
		return expr.GreaterThanOrEqual
	case expr.GreaterThan:
		return expr.LessThan
	case expr.GreaterThanOrEqual:
		return expr.LessThanOrEqual
	default:
		return op
	}
}

func sqlSymbol(op expr.BinaryOp) string {
	switch op {
	case expr.Equal:
		return "="
	case expr.NotEqual:
		return "<>"
	default:
		return op.Symbol()
	}
}

// memberOf returns the target and name of a member access, including Property(x, "Name").
func memberOf(n expr.Node) (expr.Node, string, bool) {
	switch n := expr.StripConvert(n).(type) {
	case *expr.Member:
		return n.Target, n.Name, true
	case *expr.Call:
		if n.Op == expr.OpProperty && n.Object == nil && len(n.Args) == 2 {
			if c, ok := n.Args[1].(*expr.Constant); ok {
				if name, ok := c.Value.(string); ok {
					return n.Args[0], name, true
				}
			}
		}
	}
	return nil, "", false
}

func rootedAt(n expr.Node, param *expr.Parameter) bool {
	for {
		n = expr.StripConvert(n)
		if n == expr.Node(param) {
			return true
		}
		target, _, ok := memberOf(n)
		if !ok {
			return false
		}
		n = target
	}
}

// column resolves n to a column of entity. ok is false when n does not read from param.
func (b *Builder) column(entity *metadata.EntityMetadata, param *expr.Parameter, n expr.Node) (clause.Column, bool, error) {
	if !rootedAt(n, param) {
		return clause.Column{}, false, nil
	}
	target, name, ok := memberOf(n)
	if !ok {
		return clause.Column{}, false, unsupported("entity %s used as a value; rewrite entity comparisons first", entity.EntityName)
	}
	target = expr.StripConvert(target)

	if target == expr.Node(param) {
		prop := entity.FindStructuralProperty(name)
		if prop == nil {
			if entity.FindNavigationProperty(name) != nil {
				return clause.Column{}, false, unsupported("navigation %s.%s used as a value; rewrite entity comparisons first", entity.EntityName, name)
			}
			return clause.Column{}, false, unsupported("%s has no column %s", entity.EntityName, name)
		}
		return clause.Column{Table: clause.CurrentTable, Name: prop.ColumnName}, true, nil
	}

	navTarget, navName, ok := memberOf(target)
	if !ok || expr.StripConvert(navTarget) != expr.Node(param) {
		return clause.Column{}, false, unsupported("%s requires a join", n)
	}
	nav := b.model.FindNavigation(entity, navName)
	if nav == nil || nav.NavigationIsArray || !nav.ForeignKeyOnDeclaring {
		return clause.Column{}, false, unsupported("%s requires a join", n)
	}
	for dependent, principal := range nav.ReferentialConstraints {
		if principal != name {
			continue
		}
		if fk := entity.FindStructuralProperty(dependent); fk != nil {
			return clause.Column{Table: clause.CurrentTable, Name: fk.ColumnName}, true, nil
		}
	}
	return clause.Column{}, false, unsupported("%s requires a join", n)
}

// evaluate computes a value that does not depend on the lambda parameter. Members of
// constants are read by field name from structs and by key from string-keyed maps.
func evaluate(n expr.Node) (interface{}, error) {
	n = expr.StripConvert(n)
	if c, ok := n.(*expr.Constant); ok {
		return c.Value, nil
	}
	target, name, ok := memberOf(n)
	if !ok {
		return nil, unsupported("cannot evaluate %s", n)
	}
	owner, err := evaluate(target)
	if err != nil {
		return nil, err
	}
	return memberValue(owner, name)
}

func memberValue(owner interface{}, name string) (interface{}, error) {
	rv := reflect.ValueOf(owner)
	if !rv.IsValid() {
		return nil, unsupported("member %s read from null", name)
	}
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, unsupported("member %s read from null", name)
		}
		rv = rv.Elem()
	}

	var field reflect.Value
	switch rv.Kind() {
	case reflect.Struct:
		field = rv.FieldByName(name)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, unsupported("member %s read from %s", name, rv.Type())
		}
		field = rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !field.IsValid() {
			return nil, nil
		}
	default:
		return nil, unsupported("member %s read from %s", name, rv.Type())
	}
	if !field.IsValid() || !field.CanInterface() {
		return nil, unsupported("%s has no exported member %s", rv.Type(), name)
	}
	for field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return nil, nil
		}
		field = field.Elem()
	}
	return field.Interface(), nil
}
