package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricRewritePasses      = "entityquery.rewrite.passes"
	MetricRewriteComparisons = "entityquery.rewrite.comparisons"
	MetricRewriteDuration    = "entityquery.rewrite.duration"
	MetricDBQueries          = "entityquery.db.queries"
)

// Outcomes and comparison kinds used as metric attributes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	KindKey              = "key"
	KindNull             = "null"
	KindConstant         = "constant"
	KindCollectionParent = "collection_parent"
)

var (
	attrOutcome = attribute.Key("outcome")
	attrKind    = attribute.Key("kind")
)

// Metrics holds the metric instruments.
type Metrics struct {
	passes      metric.Int64Counter
	comparisons metric.Int64Counter
	duration    metric.Float64Histogram
	dbQueries   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	passes, err := meter.Int64Counter(MetricRewritePasses,
		metric.WithDescription("Number of entity equality rewrite passes"),
		metric.WithUnit("{pass}"))
	if err != nil {
		return nil, err
	}
	comparisons, err := meter.Int64Counter(MetricRewriteComparisons,
		metric.WithDescription("Number of entity comparisons rewritten, by rule"),
		metric.WithUnit("{comparison}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(MetricRewriteDuration,
		metric.WithDescription("Duration of rewrite passes"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	dbQueries, err := meter.Int64Counter(MetricDBQueries,
		metric.WithDescription("Number of database queries executed from rewritten trees"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{passes: passes, comparisons: comparisons, duration: duration, dbQueries: dbQueries}, nil
}

// RecordPass records a finished rewrite pass.
func (m *Metrics) RecordPass(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attrOutcome.String(outcome))
	m.passes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// RecordComparisons records n rewritten comparisons of the given kind. Zero counts are skipped.
func (m *Metrics) RecordComparisons(ctx context.Context, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.comparisons.Add(ctx, int64(n), metric.WithAttributes(attrKind.String(kind)))
}

// RecordDBQuery records an executed database query.
func (m *Metrics) RecordDBQuery(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.dbQueries.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}
