// Package entityquery rewrites entity equality in query-operator trees into primary-key
// equality, so an ORM query translator never has to compare entity references.
//
// Register the entity types once, then rewrite trees built with the constructors
// re-exported here:
//
//	model := entityquery.NewModel()
//	if err := model.Register(&Customer{}, &Order{}); err != nil {
//	    log.Fatal(err)
//	}
//	rewriter, err := entityquery.NewRewriter(model)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	o := entityquery.Param("o")
//	tree := entityquery.Where(entityquery.Root("Order"),
//	    entityquery.Fn(entityquery.Eq(entityquery.Prop(o, "Customer"), entityquery.Null()), o))
//	rewritten, stats, err := rewriter.Rewrite(ctx, tree)
//	// Query<Order>.Where(o => (o.Customer.ID == null))
//
// # Comparison Rules
//
// Comparisons whose operands denote entities of one hierarchy are lowered to key
// comparisons. Composite keys compare component-wise. Entities of unrelated hierarchies
// are never equal, and a comparison of null with null is decided statically. Collection
// navigations compared with null compare the entity declaring the navigation instead;
// use Any to test for an empty collection.
//
// # Executing Rewritten Queries
//
// Rewriter.Find lowers a rewritten single-entity pipeline (Where, OrderBy, ThenBy, Skip,
// Take, FirstOrDefault, Count) onto a *gorm.DB and runs it:
//
//	db, err := entityquery.Open(entityquery.DialectSQLite, "orders.db", nil)
//	var orders []Order
//	stats, err := rewriter.Find(ctx, db, tree, &orders)
package entityquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nlstn/go-entityquery/internal/expr"
	"github.com/nlstn/go-entityquery/internal/metadata"
	"github.com/nlstn/go-entityquery/internal/observability"
	"github.com/nlstn/go-entityquery/internal/rewrite"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Model is the registry of entity types a Rewriter consults. Register every entity type
// before creating a Rewriter; NewRewriter freezes the model.
type Model struct {
	meta *metadata.Model
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{meta: metadata.NewModel()}
}

// LoadModel reads a YAML model document and returns the frozen model it declares.
func LoadModel(path string) (*Model, error) {
	meta, err := metadata.LoadModelFile(path)
	if err != nil {
		return nil, err
	}
	return &Model{meta: meta}, nil
}

// Register analyzes entity structs and adds them to the model.
//
// Keys are taken from `entity:"key"` or `gorm:"primaryKey"` tags, or from a field named ID.
// Struct-typed fields and slices of structs whose type is registered become navigations.
// Anonymously embedding a registered entity makes it the base type.
func (m *Model) Register(entities ...interface{}) error {
	return m.meta.Register(entities...)
}

// Freeze resolves inheritance and navigation targets and makes the model read-only.
func (m *Model) Freeze() error {
	return m.meta.Freeze()
}

// EntityNames returns the registered entity type names in sorted order.
func (m *Model) EntityNames() []string {
	entities := m.meta.Entities()
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.EntityName
	}
	return names
}

// Metadata returns the underlying metadata registry.
func (m *Model) Metadata() *metadata.Model {
	return m.meta
}

// Config controls optional rewriter behaviours.
type Config struct {
	// MaxDepth limits the nesting depth of rewritten trees.
	// Default: 256. If set to 0 or left unset, DefaultMaxDepth is used. Deeper trees fail
	// with ErrCodeMaxDepthExceeded.
	MaxDepth int
}

// DefaultMaxDepth is the default maximum tree depth.
const DefaultMaxDepth = rewrite.DefaultMaxDepth

// Stats counts the comparisons one pass rewrote, by the rule that applied.
type Stats = rewrite.Stats

// TranslationError reports a tree the rewriter cannot translate.
type TranslationError = rewrite.TranslationError

// Error codes carried by TranslationError.
const (
	ErrCodeUnsupportedQueryShape = rewrite.ErrCodeUnsupportedQueryShape
	ErrCodeMissingPrimaryKey     = rewrite.ErrCodeMissingPrimaryKey
	ErrCodeMaxDepthExceeded      = rewrite.ErrCodeMaxDepthExceeded
	ErrCodeUnsupportedNode       = rewrite.ErrCodeUnsupportedNode
)

// IsUnsupportedQuery reports whether err rejects the shape of the query.
func IsUnsupportedQuery(err error) bool {
	return rewrite.IsUnsupportedQuery(err)
}

// IsMetadataError reports whether err was caused by incomplete entity metadata.
func IsMetadataError(err error) bool {
	return rewrite.IsMetadataError(err)
}

// Rewriter runs entity equality rewrites against one model. Rewrite and Find are safe for
// concurrent use; configure the rewriter before sharing it.
type Rewriter struct {
	model         *Model
	maxDepth      int
	logger        *slog.Logger
	observability *observability.Config
}

// NewRewriter creates a rewriter with the default configuration.
func NewRewriter(model *Model) (*Rewriter, error) {
	return NewRewriterWithConfig(model, Config{})
}

// NewRewriterWithConfig creates a rewriter. The model is frozen if it is not already.
func NewRewriterWithConfig(model *Model, cfg Config) (*Rewriter, error) {
	if model == nil {
		return nil, fmt.Errorf("entityquery: model is required")
	}
	if err := model.Freeze(); err != nil {
		return nil, fmt.Errorf("entityquery: invalid model: %w", err)
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	return &Rewriter{
		model:         model,
		maxDepth:      maxDepth,
		logger:        slog.Default(),
		observability: observability.Default(),
	}, nil
}

// SetLogger sets a custom logger for the rewriter.
// If logger is nil, slog.Default() is used.
func (r *Rewriter) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
	return nil
}

// ObservabilityConfig configures tracing and metrics for rewrite passes.
// All providers are optional; when nil, the corresponding feature is a no-op.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter. If nil, metrics are disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "entityquery" if not specified.
	ServiceName string

	// ServiceVersion is reported as the instrumentation version.
	ServiceVersion string

	// EnableDetailedDBTracing makes InstrumentDB add one span per executed query.
	EnableDetailedDBTracing bool
}

// SetObservability configures OpenTelemetry tracing and metrics.
//
// Every pass emits an entityquery.rewrite span carrying the tree fingerprint, the pass id
// and the number of rewritten comparisons, and counts passes and comparisons:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	rewriter.SetObservability(entityquery.ObservabilityConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "orders-api",
//	})
func (r *Rewriter) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{observability.WithLogger(r.logger)}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if cfg.EnableDetailedDBTracing {
		opts = append(opts, observability.WithDetailedDBTracing())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	r.observability = obsCfg

	r.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"service_name", obsCfg.ServiceName(),
	)
	return nil
}

// Observability returns the current observability configuration.
func (r *Rewriter) Observability() *observability.Config {
	return r.observability
}

// Rewrite runs one rewrite pass over tree. Unchanged subtrees of tree are shared with the
// result. A tree without entity comparisons is returned as it is.
func (r *Rewriter) Rewrite(ctx context.Context, tree Node) (Node, Stats, error) {
	passID := uuid.NewString()
	fingerprint := expr.FingerprintHex(tree)
	logger := r.logger.With("pass_id", passID)

	ctx, span := r.observability.Tracer().StartRewrite(ctx, fingerprint, passID)
	defer span.End()

	start := time.Now()
	result, stats, err := rewrite.New(r.model.meta,
		rewrite.WithMaxDepth(r.maxDepth),
		rewrite.WithLogger(logger),
	).Rewrite(tree)
	duration := time.Since(start)

	metrics := r.observability.Metrics()
	if err != nil {
		observability.RecordError(span, err)
		metrics.RecordPass(ctx, observability.OutcomeError, duration)
		return nil, Stats{}, err
	}

	span.SetAttributes(observability.ComparisonsAttr(stats.Total()))
	metrics.RecordPass(ctx, observability.OutcomeOK, duration)
	metrics.RecordComparisons(ctx, observability.KindKey, stats.Key)
	metrics.RecordComparisons(ctx, observability.KindNull, stats.Null)
	metrics.RecordComparisons(ctx, observability.KindConstant, stats.Constant)
	metrics.RecordComparisons(ctx, observability.KindCollectionParent, stats.CollectionParent)

	logger.Debug("Rewrote entity comparisons",
		"fingerprint", fingerprint,
		"comparisons", stats.Total(),
		"duration", duration)
	return result, stats, nil
}

// Rewrite runs a single pass over tree with the default configuration.
func Rewrite(tree Node, model *Model) (Node, error) {
	r, err := NewRewriter(model)
	if err != nil {
		return nil, err
	}
	result, _, err := r.Rewrite(context.Background(), tree)
	return result, err
}
