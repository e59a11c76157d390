package rewrite

import "github.com/nlstn/go-entityquery/internal/expr"

// policy says how a query operator propagates the flowing entity type.
type policy int

const (
	// policyOpaque visits arguments without binding lambdas; the result flows nothing.
	policyOpaque policy = iota
	// policyPassThrough binds the lambda to the source type; the result flows the source type.
	policyPassThrough
	// policyReducing binds like pass-through; the result is a scalar.
	policyReducing
	// policyProjecting binds like pass-through; the result flows whatever the lambda body flowed.
	policyProjecting
)

var policyNames = [...]string{
	policyOpaque:      "opaque",
	policyPassThrough: "pass-through",
	policyReducing:    "reducing",
	policyProjecting:  "projecting",
}

func (p policy) String() string {
	return policyNames[p]
}

var operatorPolicies = map[expr.Operator]policy{
	expr.OpWhere:              policyPassThrough,
	expr.OpCast:               policyPassThrough,
	expr.OpConcat:             policyPassThrough,
	expr.OpDefaultIfEmpty:     policyPassThrough,
	expr.OpDistinct:           policyPassThrough,
	expr.OpElementAt:          policyPassThrough,
	expr.OpElementAtOrDefault: policyPassThrough,
	expr.OpExcept:             policyPassThrough,
	expr.OpFirst:              policyPassThrough,
	expr.OpFirstOrDefault:     policyPassThrough,
	expr.OpLast:               policyPassThrough,
	expr.OpLastOrDefault:      policyPassThrough,
	expr.OpSingle:             policyPassThrough,
	expr.OpSingleOrDefault:    policyPassThrough,
	expr.OpIntersect:          policyPassThrough,
	expr.OpOfType:             policyPassThrough,
	expr.OpOrderBy:            policyPassThrough,
	expr.OpOrderByDescending:  policyPassThrough,
	expr.OpThenBy:             policyPassThrough,
	expr.OpThenByDescending:   policyPassThrough,
	expr.OpReverse:            policyPassThrough,
	expr.OpSkip:               policyPassThrough,
	expr.OpSkipWhile:          policyPassThrough,
	expr.OpTake:               policyPassThrough,
	expr.OpTakeWhile:          policyPassThrough,
	expr.OpUnion:              policyPassThrough,

	expr.OpAll:       policyReducing,
	expr.OpAny:       policyReducing,
	expr.OpAverage:   policyReducing,
	expr.OpContains:  policyReducing,
	expr.OpCount:     policyReducing,
	expr.OpLongCount: policyReducing,
	expr.OpMax:       policyReducing,
	expr.OpMin:       policyReducing,
	expr.OpSum:       policyReducing,

	expr.OpSelect:     policyProjecting,
	expr.OpSelectMany: policyProjecting,
}

// classify returns the policy for a query-operator call. Operators missing from the table,
// and SelectMany with a result selector, are opaque.
func classify(call *expr.Call) policy {
	p, ok := operatorPolicies[call.Op]
	if !ok {
		return policyOpaque
	}
	if call.Op == expr.OpSelectMany && len(call.Lambdas()) > 1 {
		return policyOpaque
	}
	return p
}
