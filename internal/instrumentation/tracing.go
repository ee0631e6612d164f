package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/calbridge/internal/logging"
)

// TracerName is the instrumentation scope of every calbridge span.
const TracerName = "github.com/teemow/calbridge"

// Span attribute keys.
const (
	SpanAttrOperation = "calbridge.operation"
	SpanAttrProvider  = "calbridge.provider"
	SpanAttrUserHash  = "calbridge.user_hash"
	SpanAttrEventID   = "calbridge.event_id"
	SpanAttrCount     = "calbridge.count"
)

// StartAggregationSpan opens the span of one engine request. The user is
// recorded as a hash; empty userID and eventID are left out.
func StartAggregationSpan(ctx context.Context, operation, userID, eventID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(SpanAttrOperation, operation)}
	if userID != "" {
		attrs = append(attrs, attribute.String(SpanAttrUserHash, logging.AnonymizeEmail(userID)))
	}
	if eventID != "" {
		attrs = append(attrs, attribute.String(SpanAttrEventID, eventID))
	}

	return otel.Tracer(TracerName).Start(ctx, "aggregate."+operation,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal))
}

// StartProviderSpan opens the client span of one backend call, named
// provider.<PROVIDER>.<operation>.
func StartProviderSpan(ctx context.Context, provider, operation string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "provider."+provider+"."+operation,
		trace.WithAttributes(
			attribute.String(SpanAttrProvider, provider),
			attribute.String(SpanAttrOperation, operation),
		),
		trace.WithSpanKind(trace.SpanKindClient))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SetSpanCount records how many items a span produced.
func SetSpanCount(span trace.Span, n int) {
	span.SetAttributes(attribute.Int(SpanAttrCount, n))
}

// SpanIDs returns the trace and span id of the recording span in ctx, or
// empty strings when there is none.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
