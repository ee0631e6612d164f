package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/calbridge/internal/logging"
)

// recordSpans installs a recording tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value.AsInterface()
	}
	return out
}

func TestStartAggregationSpan_Attributes(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartAggregationSpan(context.Background(), "update", "jane@example.com", "evt-1")
	EndSpan(span, nil)

	require.Len(t, rec.Ended(), 1)
	attrs := attrMap(rec.Ended()[0].Attributes())
	assert.Len(t, attrs, 3)
	assert.Equal(t, "update", attrs[SpanAttrOperation])
	assert.Equal(t, logging.AnonymizeEmail("jane@example.com"), attrs[SpanAttrUserHash])
	assert.Equal(t, "evt-1", attrs[SpanAttrEventID])
}

func TestStartAggregationSpan_EmptyValues(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartAggregationSpan(context.Background(), "fetch", "", "")
	EndSpan(span, nil)

	require.Len(t, rec.Ended(), 1)
	assert.Len(t, rec.Ended()[0].Attributes(), 1)
}

func TestStartProviderSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, parent := StartAggregationSpan(context.Background(), "fetch", "", "")
	_, span := StartProviderSpan(ctx, "OUTLOOK", "fetch")
	SetSpanCount(span, 3)
	EndSpan(span, nil)
	EndSpan(parent, nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)

	child := ended[0]
	assert.Equal(t, "provider.OUTLOOK.fetch", child.Name())
	assert.Equal(t, trace.SpanKindClient, child.SpanKind())
	assert.Equal(t, codes.Ok, child.Status().Code)
	assert.Equal(t, ended[1].SpanContext().SpanID(), child.Parent().SpanID())

	attrs := attrMap(child.Attributes())
	assert.Equal(t, "OUTLOOK", attrs[SpanAttrProvider])
	assert.Equal(t, int64(3), attrs[SpanAttrCount])

	assert.Equal(t, "aggregate.fetch", ended[1].Name())
	assert.Equal(t, trace.SpanKindInternal, ended[1].SpanKind())
}

func TestEndSpan_Error(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartProviderSpan(context.Background(), "CALDAV", "delete")
	EndSpan(span, errors.New("404 Not Found"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "404 Not Found", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestSpanIDs(t *testing.T) {
	traceID, spanID := SpanIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)

	recordSpans(t)
	ctx, span := StartAggregationSpan(context.Background(), "update", "", "")
	defer span.End()

	traceID, spanID = SpanIDs(ctx)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)
}
