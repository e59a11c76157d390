package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanRewrite = "entityquery.rewrite"
	SpanFind    = "entityquery.find"
	SpanDBQuery = "entityquery.db.query"
)

// Attribute keys.
const (
	AttrServiceName  = attribute.Key("service.name")
	AttrFingerprint  = attribute.Key("query.fingerprint")
	AttrPassID       = attribute.Key("rewrite.pass_id")
	AttrComparisons  = attribute.Key("rewrite.comparisons")
	AttrEntity       = attribute.Key("entityquery.entity")
	AttrDBStatement  = attribute.Key("db.statement")
	AttrDBTable      = attribute.Key("db.sql.table")
	AttrRowsAffected = attribute.Key("db.rows_affected")
)

// Tracer wraps an OpenTelemetry tracer with the spans this module emits.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

func newTracer(tracer trace.Tracer, serviceName string) *Tracer {
	return &Tracer{tracer: tracer, serviceName: serviceName}
}

// StartRewrite starts the span of one rewrite pass.
func (t *Tracer) StartRewrite(ctx context.Context, fingerprint, passID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRewrite,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrServiceName.String(t.serviceName),
			AttrFingerprint.String(fingerprint),
			AttrPassID.String(passID),
		),
	)
}

// StartFind starts the span of a rewritten query executed against a database.
func (t *Tracer) StartFind(ctx context.Context, entity string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanFind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrServiceName.String(t.serviceName),
			AttrEntity.String(entity),
		),
	)
}

// StartDBQuery starts a client span for a single database statement.
func (t *Tracer) StartDBQuery(ctx context.Context, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDBQuery,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrDBTable.String(table)),
	)
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ComparisonsAttr returns the attribute carrying the number of rewritten comparisons.
func ComparisonsAttr(n int) attribute.KeyValue {
	return AttrComparisons.Int(n)
}
