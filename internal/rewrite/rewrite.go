// Package rewrite lowers entity equality in query-operator trees to primary-key equality.
//
// The pass walks the tree once, tracking which entity type each sub-expression denotes,
// and rewrites every ==, !=, Equals and ReferenceEquals whose operands denote entities:
//
//	o.Customer == c            =>  (o.Customer.ID == c.ID)
//	o.Customer != null         =>  (o.Customer.ID != null)
//	line == other (composite)  =>  ((line.OrderID == other.OrderID) && (line.LineNo == other.LineNo))
//	person == order            =>  false
package rewrite

import (
	"errors"
	"log/slog"

	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
)

// DefaultMaxDepth bounds tree nesting when no explicit limit is configured.
const DefaultMaxDepth = 256

// Model is the read-only entity metadata a pass consults. *metadata.Model implements it.
type Model interface {
	FindEntityType(name string) *metadata.EntityMetadata
	FindNavigation(entity *metadata.EntityMetadata, name string) *metadata.PropertyMetadata
	NavigationTarget(nav *metadata.PropertyMetadata) *metadata.EntityMetadata
	PrimaryKeyProperties(entity *metadata.EntityMetadata) []metadata.PropertyMetadata
	RootType(entity *metadata.EntityMetadata) *metadata.EntityMetadata
	IsCollection(nav *metadata.PropertyMetadata) bool
	DeclaringType(nav *metadata.PropertyMetadata) *metadata.EntityMetadata
}

var _ Model = (*metadata.Model)(nil)

// Stats counts the comparisons a pass rewrote, by the rule that applied.
type Stats struct {
	// Key counts entity comparisons lowered to key comparisons.
	Key int
	// Null counts entity-to-null comparisons lowered to key-to-null comparisons.
	Null int
	// Constant counts comparisons decided statically.
	Constant int
	// CollectionParent counts comparisons of collection navigations resolved on the
	// declaring entity.
	CollectionParent int
}

// Total returns the number of rewritten comparisons.
func (s Stats) Total() int {
	return s.Key + s.Null + s.Constant + s.CollectionParent
}

// Rewriter runs rewrite passes against one model. It holds no per-pass state and is safe
// for concurrent use.
type Rewriter struct {
	model    Model
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMaxDepth bounds tree nesting. Zero or negative values select DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(r *Rewriter) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithLogger sets the logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Rewriter over model.
func New(model Model, opts ...Option) *Rewriter {
	r := &Rewriter{
		model:    model,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite runs one pass over tree. The returned tree shares every unchanged subtree with
// the input. On error no tree is returned.
func (r *Rewriter) Rewrite(tree expr.Node) (expr.Node, Stats, error) {
	v := &visitor{
		model:    r.model,
		maxDepth: r.maxDepth,
		logger:   r.logger,
	}
	result, err := v.visit(tree)
	if err != nil {
		var op string
		var te *TranslationError
		if errors.As(err, &te) {
			op = te.Operator
		}
		r.logger.Warn("Entity equality rewrite failed", "operator", op, "error", err)
		return nil, Stats{}, err
	}
	return result, v.stats, nil
}

// Rewrite runs a single pass with default options.
func Rewrite(tree expr.Node, model Model) (expr.Node, error) {
	result, _, err := New(model).Rewrite(tree)
	return result, err
}
