// Package tracing wraps OpenTelemetry span creation for the ingestion
// pipelines, grounded on the teacher's own use of
// `otel.GetTracerProvider().Tracer(...)` to obtain a named tracer ad hoc at
// each call site (see miner/test_backend.go in the teacher tree) rather
// than threading a *trace.Tracer through every constructor.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Start begins a span named op under the named tracer component (e.g.
// "backfill", "materialise"), returning the derived context and the span.
// Callers defer End(span, &err) to record failure status and close it.
func Start(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer("chainweb-indexer/" + component)
	return tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// End closes span, marking it as errored if *errp is non-nil at call time.
// Intended for `defer tracing.End(span, &err)` immediately after Start.
func End(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}

// ChainID is a convenience attribute constructor, since every pipeline
// tags its spans with the chain it's operating on.
func ChainID(id int) attribute.KeyValue { return attribute.Int("chainweb.chain_id", id) }

// Height is a convenience attribute constructor for block-height-scoped spans.
func Height(h uint64) attribute.KeyValue { return attribute.Int64("chainweb.height", int64(h)) }

// Network is a convenience attribute constructor for the chain network name.
func Network(n string) attribute.KeyValue { return attribute.String("chainweb.network", n) }
