package querydoc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerNullQuery = `
query:
  call: Where
  args:
    - root: Order
    - lambda: [o]
      body:
        binary: "=="
        left: {path: o.Customer}
        right: {const: null}
`

func TestDecode_Example(t *testing.T) {
	tree, err := Unmarshal([]byte(customerNullQuery))
	require.NoError(t, err)
	assert.Equal(t, "Query<Order>.Where(o => (o.Customer == null))", tree.String())

	where, ok := tree.(*expr.Call)
	require.True(t, ok)
	assert.Equal(t, expr.OpWhere, where.Op)

	lambda := where.Args[1].(*expr.Lambda)
	member := lambda.Body.(*expr.Binary).Left.(*expr.Member)
	assert.Same(t, lambda.Params[0], member.Target, "path must bind to the lambda parameter")
}

func TestDecode_NodeKinds(t *testing.T) {
	doc := `
query:
  call: Select
  args:
    - call: OfType
      type: Employee
      args: [{root: Person}]
    - lambda: [p]
      body:
        object:
          Same:
            call: ReferenceEquals
            args: [{param: p}, {const: {ID: 3}, type: Person}]
          Boss:
            if: {unary: Not, operand: {member: Active, of: {param: p}}}
            then: {unary: TypeAs, operand: {path: p.Manager}, type: Employee}
            else: {const: null}
          Key:
            tuple: [{path: p.ID}, {const: 1}]
          Name:
            call: ToUpper
            object: {path: p.Name}
`
	tree, err := Unmarshal([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t,
		`Query<Person>.OfType<Employee>().Select(p => {Same: ReferenceEquals(p, Person(map[ID:3])), Boss: (!p.Active ? (p.Manager as Employee) : null), Key: (p.ID, 1), Name: p.Name.ToUpper()})`,
		tree.String())
}

func TestDecode_ShadowedParameters(t *testing.T) {
	doc := `
query:
  call: Where
  args:
    - root: Customer
    - lambda: [c]
      body:
        call: Any
        args:
          - path: c.Orders
          - lambda: [c]
            body: {binary: "!=", left: {path: c.Customer}, right: {const: null}}
`
	tree, err := Unmarshal([]byte(doc))
	require.NoError(t, err)

	outer := tree.(*expr.Call).Args[1].(*expr.Lambda)
	anyCall := outer.Body.(*expr.Call)
	inner := anyCall.Args[1].(*expr.Lambda)

	source := anyCall.Args[0].(*expr.Member)
	assert.Same(t, outer.Params[0], source.Target)

	ref := inner.Body.(*expr.Binary).Left.(*expr.Member)
	assert.Same(t, inner.Params[0], ref.Target)
	assert.NotSame(t, outer.Params[0], inner.Params[0])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{"empty document", "", "empty"},
		{"no query", "other: 1", "field other not found"},
		{"unbound parameter", "query: {path: o.ID}", "parameter o is not declared"},
		{"unknown node", "query: {nothing: 1}", "unknown node"},
		{"two kinds", "query: {root: Order, param: o}", "node has both"},
		{"unknown binary", `query: {binary: "<>", left: {const: 1}, right: {const: 2}}`, "unknown binary operator"},
		{"unknown unary", "query: {unary: Box, operand: {const: 1}}", "unknown unary operator"},
		{"lambda without body", "query: {lambda: [o]}", "lambda has no body"},
		{"duplicate lambda parameter", "query: {lambda: [o, o], body: {param: o}}", "declares o twice"},
		{"member without target", "query: {member: ID}", "has no of"},
		{"args not a list", "query: {call: Where, args: {root: Order}}", "expected a list"},
		{"empty path member", "query: {lambda: [o], body: {path: o..ID}}", "empty member name"},
		{"if without else", "query: {if: {const: true}, then: {const: 1}}", "if needs then and else"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	o := expr.Param("o")
	l := expr.Param("l")
	x := expr.Param("x")
	y := expr.Param("y")

	trees := []expr.Node{
		expr.Where(expr.Root("Order"), expr.Fn(expr.Eq(expr.Prop(o, "Customer"), expr.Null()), o)),
		expr.Take(expr.Skip(expr.OrderBy(expr.Root("Order"), expr.Fn(expr.Prop(o, "ID"), o)), 10), 5),
		expr.Where(expr.Root("OrderLine"), expr.Fn(
			expr.And(expr.Ne(expr.Prop(l, "Quantity"), expr.Const(0)), expr.NotOf(expr.EqualsCall(l, expr.TypedConst("key", "OrderLine")))), l)),
		expr.Select(expr.Root("Customer"), expr.Fn(expr.Object([]string{"A", "B"}, []expr.Node{
			expr.Any(expr.Prop(x, "Orders"), expr.Fn(expr.Gt(expr.Prop(y, "Total"), expr.Prop(x, "Limit")), y)),
			expr.If(expr.True(), expr.Tuple(expr.Prop(x, "ID"), expr.Const("a")), expr.ConvertTo(expr.Null(), "Customer")),
		}), x)),
		expr.Join(expr.Root("Order"), expr.Root("Customer"),
			expr.Fn(expr.Prop(o, "CustomerID"), o),
			expr.Fn(expr.Prop(x, "ID"), x),
			expr.Fn(expr.Tuple(o, x), o, x)),
		expr.Count(expr.Where(expr.Root("Order"), expr.Fn(expr.Eq(expr.PropertyOf(o, "Customer"), expr.Prop(expr.Null(), "X")), o))),
	}

	for _, tree := range trees {
		t.Run(tree.String(), func(t *testing.T) {
			data, err := Marshal(tree)
			require.NoError(t, err)

			decoded, err := Unmarshal(data)
			require.NoError(t, err, string(data))
			assert.Equal(t, tree.String(), decoded.String())
			assert.Equal(t, expr.Fingerprint(tree), expr.Fingerprint(decoded))
		})
	}
}

type customer struct {
	ID      int
	Name    string
	Manager *customer
	hidden  string
}

func TestMarshal_EntityConstant(t *testing.T) {
	tree := expr.TypedConst(&customer{ID: 7, Name: "Ada", hidden: "x"}, "Customer")

	data, err := Marshal(tree)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "ID: 7")
	assert.Contains(t, text, "Name: Ada")
	assert.Contains(t, text, "type: Customer")
	assert.NotContains(t, text, "hidden")

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	c := decoded.(*expr.Constant)
	assert.Equal(t, "Customer", c.Type)
	value, ok := c.Value.(map[string]interface{})
	require.True(t, ok, "expected a map, got %T", c.Value)
	assert.Equal(t, 7, value["ID"])
	assert.Nil(t, value["Manager"])
}

func TestMarshal_CyclicConstant(t *testing.T) {
	c := &customer{ID: 1}
	c.Manager = c
	_, err := Marshal(expr.Const(c))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested deeper")
}

func TestMarshal_ParameterScope(t *testing.T) {
	o := expr.Param("o")
	_, err := Marshal(expr.Eq(expr.Prop(o, "ID"), expr.Const(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")

	other := expr.Param("o")
	_, err = Marshal(expr.Fn(expr.Fn(expr.Eq(o, other), other), o))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadowed")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customerNullQuery), 0o600))

	tree, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tree.String(), "Query<Order>.Where"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
