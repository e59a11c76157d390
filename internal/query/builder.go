// Package query lowers rewritten single-entity query trees onto GORM.
//
// A tree is accepted when it is a chain of operators over one query root:
//
//	Query<Order>.Where(o => (o.Customer.ID == 7)).OrderBy(o => o.ID).Skip(10).Take(5)
//
// Predicates may compare columns of the root entity with constants or with each other.
// Key access through a single-valued navigation whose foreign key lives on the root
// entity resolves to the foreign-key column, so o.Customer.ID reads orders.customer_id.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnsupported is wrapped by every error reporting a tree the builder cannot lower.
var ErrUnsupported = errors.New("unsupported query")

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Plan is a lowered query over one entity table.
type Plan struct {
	Entity *metadata.EntityMetadata
	Where  []clause.Expression
	Order  []clause.OrderByColumn
	Offset int
	Limit  *int
	// Count is set when the pipeline ends in Count or LongCount.
	Count bool
}

// Builder lowers trees against a model.
type Builder struct {
	model  *metadata.Model
	logger *slog.Logger
}

// NewBuilder creates a builder for model.
func NewBuilder(model *metadata.Model) *Builder {
	return &Builder{model: model, logger: slog.Default()}
}

// WithLogger sets the logger for the builder
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build lowers tree into a Plan.
func (b *Builder) Build(tree expr.Node) (*Plan, error) {
	plan := &Plan{}
	if err := b.buildPipeline(plan, tree, true); err != nil {
		return nil, err
	}
	b.logger.Debug("Lowered query", "entity", plan.Entity.EntityName, "conditions", len(plan.Where), "order", len(plan.Order))
	return plan, nil
}

// buildPipeline walks the operator chain from the root outwards. last is set for the
// outermost operator, the only position Count may take.
func (b *Builder) buildPipeline(plan *Plan, n expr.Node, last bool) error {
	switch n := n.(type) {
	case *expr.QueryRoot:
		entity := b.model.FindEntityType(n.ElementType)
		if entity == nil {
			return unsupported("unknown entity type %s", n.ElementType)
		}
		if entity.TableName == "" {
			return unsupported("entity type %s has no table", n.ElementType)
		}
		plan.Entity = entity
		return nil
	case *expr.Call:
		if n.Object != nil || !n.Op.IsQueryOperator() || len(n.Args) == 0 {
			return unsupported("cannot lower call %s", n.Name)
		}
		if err := b.buildPipeline(plan, n.Args[0], false); err != nil {
			return err
		}
		return b.applyOperator(plan, n, last)
	default:
		return unsupported("cannot lower %s node as a query source", n.Kind())
	}
}

func (b *Builder) applyOperator(plan *Plan, call *expr.Call, last bool) error {
	if plan.Limit != nil && call.Op != expr.OpTake && call.Op != expr.OpCount && call.Op != expr.OpLongCount {
		return unsupported("%s after Take", call.Name)
	}

	switch call.Op {
	case expr.OpWhere:
		if plan.Offset > 0 {
			return unsupported("%s after Skip", call.Name)
		}
		param, body, err := singleLambda(call)
		if err != nil {
			return err
		}
		cond, err := b.predicate(plan.Entity, param, body)
		if err != nil {
			return err
		}
		plan.Where = append(plan.Where, cond)
	case expr.OpOrderBy, expr.OpOrderByDescending, expr.OpThenBy, expr.OpThenByDescending:
		if plan.Offset > 0 {
			return unsupported("%s after Skip", call.Name)
		}
		param, body, err := singleLambda(call)
		if err != nil {
			return err
		}
		column, ok, err := b.column(plan.Entity, param, body)
		if err != nil {
			return err
		}
		if !ok {
			return unsupported("%s key must be a column", call.Name)
		}
		if call.Op == expr.OpOrderBy || call.Op == expr.OpOrderByDescending {
			plan.Order = plan.Order[:0]
		}
		desc := call.Op == expr.OpOrderByDescending || call.Op == expr.OpThenByDescending
		plan.Order = append(plan.Order, clause.OrderByColumn{Column: column, Desc: desc})
	case expr.OpSkip:
		n, err := intArgument(call)
		if err != nil {
			return err
		}
		plan.Offset += n
	case expr.OpTake:
		n, err := intArgument(call)
		if err != nil {
			return err
		}
		if plan.Limit == nil || n < *plan.Limit {
			plan.Limit = &n
		}
	case expr.OpFirst, expr.OpFirstOrDefault:
		if len(call.Args) != 1 {
			return unsupported("%s with a predicate", call.Name)
		}
		one := 1
		plan.Limit = &one
	case expr.OpCount, expr.OpLongCount:
		if !last || len(call.Args) != 1 {
			return unsupported("%s must be the last operator and take no predicate", call.Name)
		}
		// count(*) ignores LIMIT and OFFSET, so a paged source would be miscounted.
		if plan.Offset > 0 || plan.Limit != nil {
			return unsupported("%s over a paged source", call.Name)
		}
		plan.Count = true
	default:
		return unsupported("operator %s", call.Name)
	}
	return nil
}

func singleLambda(call *expr.Call) (*expr.Parameter, expr.Node, error) {
	if len(call.Args) != 2 {
		return nil, nil, unsupported("%s takes one lambda", call.Name)
	}
	l, ok := call.Args[1].(*expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return nil, nil, unsupported("%s takes one single-parameter lambda", call.Name)
	}
	return l.Params[0], l.Body, nil
}

func intArgument(call *expr.Call) (int, error) {
	if len(call.Args) != 2 {
		return 0, unsupported("%s takes one count", call.Name)
	}
	c, ok := call.Args[1].(*expr.Constant)
	if !ok {
		return 0, unsupported("%s count must be a constant", call.Name)
	}
	rv := reflect.ValueOf(c.Value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, unsupported("%s count must not be negative", call.Name)
		}
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), nil
	default:
		return 0, unsupported("%s count must be an integer", call.Name)
	}
}

// Apply adds the plan's clauses to db. Count plans still need Count to be called.
func (p *Plan) Apply(db *gorm.DB) *gorm.DB {
	tx := db.Table(p.Entity.TableName)
	if len(p.Where) > 0 {
		tx = tx.Clauses(clause.Where{Exprs: p.Where})
	}
	if len(p.Order) > 0 {
		tx = tx.Clauses(clause.OrderBy{Columns: p.Order})
	}
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	if p.Limit != nil {
		tx = tx.Limit(*p.Limit)
	}
	return tx
}

// ToSQL renders the statement the plan would run, without executing it.
func (p *Plan) ToSQL(db *gorm.DB) string {
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		tx = p.Apply(tx)
		if p.Count {
			var count int64
			return tx.Count(&count)
		}
		var rows []map[string]interface{}
		return tx.Find(&rows)
	})
}
