package entityquery

import (
	"context"
	"fmt"

	"github.com/nlstn/go-entityquery/internal/observability"
	"github.com/nlstn/go-entityquery/internal/query"
	"github.com/nlstn/go-entityquery/internal/scope"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported database dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// ErrUnsupportedPipeline is wrapped by errors for rewritten trees that Find cannot lower
// onto a single-table query.
var ErrUnsupportedPipeline = query.ErrUnsupported

// Scope is an extra SQL condition ANDed into the query Find runs, for filters the tree does
// not express (tenancy, soft deletes).
type Scope = scope.QueryScope

// WithScope creates a Scope from a condition with ? placeholders and its arguments.
func WithScope(condition string, args ...interface{}) Scope {
	return Scope{Condition: condition, Args: args}
}

// Open connects to a database through GORM. cfg may be nil.
func Open(dialect, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &gorm.Config{}
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
	case DialectPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("entityquery: unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("entityquery: failed to open %s database: %w", dialect, err)
	}
	return db, nil
}

// InstrumentDB adds a span and a query count for every read issued through db. It does
// nothing unless detailed database tracing was enabled with SetObservability.
func (r *Rewriter) InstrumentDB(db *gorm.DB) error {
	if !r.observability.DetailedDBTracing() {
		return nil
	}
	if err := observability.RegisterGORMCallbacks(db, r.observability); err != nil {
		return fmt.Errorf("failed to register GORM callbacks: %w", err)
	}
	return nil
}

// Find rewrites tree and runs it against db. dest receives the rows, or the count as an
// *int64 when the pipeline ends in Count. Scopes are ANDed into the WHERE clause.
func (r *Rewriter) Find(ctx context.Context, db *gorm.DB, tree Node, dest interface{}, scopes ...Scope) (Stats, error) {
	rewritten, stats, err := r.Rewrite(ctx, tree)
	if err != nil {
		return Stats{}, err
	}

	plan, err := query.NewBuilder(r.model.meta).WithLogger(r.logger).Build(rewritten)
	if err != nil {
		return stats, err
	}

	ctx, span := r.observability.Tracer().StartFind(ctx, plan.Entity.EntityName)
	defer span.End()

	tx, err := scope.Apply(plan.Apply(db.WithContext(ctx)), scopes)
	if err != nil {
		observability.RecordError(span, err)
		return stats, fmt.Errorf("entityquery: %w", err)
	}
	if plan.Count {
		count, ok := dest.(*int64)
		if !ok {
			err := fmt.Errorf("entityquery: count query needs an *int64 destination, got %T", dest)
			observability.RecordError(span, err)
			return stats, err
		}
		tx = tx.Count(count)
	} else {
		tx = tx.Find(dest)
	}
	if tx.Error != nil {
		observability.RecordError(span, tx.Error)
		return stats, fmt.Errorf("entityquery: query on %s failed: %w", plan.Entity.TableName, tx.Error)
	}
	return stats, nil
}

// ToSQL rewrites tree and renders the statement Find would run on db, without running it.
func (r *Rewriter) ToSQL(ctx context.Context, db *gorm.DB, tree Node) (string, error) {
	rewritten, _, err := r.Rewrite(ctx, tree)
	if err != nil {
		return "", err
	}
	return r.RenderSQL(db, rewritten)
}

// RenderSQL renders the statement for a tree that Rewrite already returned. It does not
// rewrite again, so entity comparisons left in tree are reported as unsupported.
func (r *Rewriter) RenderSQL(db *gorm.DB, rewritten Node) (string, error) {
	plan, err := query.NewBuilder(r.model.meta).WithLogger(r.logger).Build(rewritten)
	if err != nil {
		return "", err
	}
	return plan.ToSQL(db), nil
}
