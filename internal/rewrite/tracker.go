package rewrite

import (
	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
)

// flow describes the entity a visited sub-expression denotes. A nil *flow means unknown.
// When the entity was reached through a navigation, nav is that navigation, source is the
// visited expression the navigation was read from and parent is the flow of source.
type flow struct {
	entity *metadata.EntityMetadata
	nav    *metadata.PropertyMetadata
	source expr.Node
	parent *flow
}

func entityFlow(entity *metadata.EntityMetadata) *flow {
	if entity == nil {
		return nil
	}
	return &flow{entity: entity}
}

// withoutNavigation keeps the entity type and drops how it was reached.
func (f *flow) withoutNavigation() *flow {
	if f == nil || f.nav == nil {
		return f
	}
	return &flow{entity: f.entity}
}

// binding is an immutable parameter-to-flow list; extending it never disturbs saved heads.
type binding struct {
	param *expr.Parameter
	flow  *flow
	next  *binding
}

func (b *binding) lookup(p *expr.Parameter) *flow {
	for ; b != nil; b = b.next {
		if b.param == p {
			return b.flow
		}
	}
	return nil
}

// scope is the state saved on entering a lambda body.
type scope struct {
	current *flow
	params  *binding
}

// tracker holds the ambient entity flow and the parameter bindings of the lambdas being
// visited. Scopes are saved and restored by the caller, so nesting is explicit at every
// call site.
type tracker struct {
	current *flow
	params  *binding
}

func (t *tracker) currentType() *flow { return t.current }

func (t *tracker) setCurrentType(f *flow) { t.current = f }

func (t *tracker) parameterType(p *expr.Parameter) *flow { return t.params.lookup(p) }

// saveScope saves the ambient state and clears the ambient flow without binding anything.
func (t *tracker) saveScope() scope {
	saved := scope{current: t.current, params: t.params}
	t.current = nil
	return saved
}

// pushScope saves the ambient state, clears the ambient flow and binds p to bound.
func (t *tracker) pushScope(p *expr.Parameter, bound *flow) scope {
	saved := scope{current: t.current, params: t.params}
	t.current = nil
	t.params = &binding{param: p, flow: bound, next: t.params}
	return saved
}

// popScope restores saved. With preserveCurrent the flow left by the scope body survives.
func (t *tracker) popScope(saved scope, preserveCurrent bool) {
	t.params = saved.params
	if !preserveCurrent {
		t.current = saved.current
	}
}
