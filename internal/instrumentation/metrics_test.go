package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailedLabels)
	require.NoError(t, err)
	return m, reader
}

// sums collects the int64 sum data points of the named metric.
func sums(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			return sum.DataPoints
		}
	}
	return nil
}

func attrValue(dp metricdata.DataPoint[int64], key string) string {
	v, ok := dp.Attributes.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.AsString()
}

func TestMetrics_RecordProviderOperation(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordProviderOperation(ctx, "GOOGLE", "fetch", StatusSuccess, 120*time.Millisecond)
	m.RecordProviderOperation(ctx, "GOOGLE", "fetch", StatusSuccess, 80*time.Millisecond)
	m.RecordProviderOperation(ctx, "OUTLOOK", "fetch", StatusTimeout, 30*time.Second)

	points := sums(t, reader, "provider_operations_total")
	require.Len(t, points, 2)

	byProvider := map[string]metricdata.DataPoint[int64]{}
	for _, dp := range points {
		byProvider[attrValue(dp, attrProvider)] = dp
	}
	assert.Equal(t, int64(2), byProvider["GOOGLE"].Value)
	assert.Equal(t, StatusSuccess, attrValue(byProvider["GOOGLE"], attrStatus))
	assert.Equal(t, int64(1), byProvider["OUTLOOK"].Value)
	assert.Equal(t, StatusTimeout, attrValue(byProvider["OUTLOOK"], attrStatus))
}

func TestMetrics_RecordAggregation(t *testing.T) {
	t.Run("without detailed labels", func(t *testing.T) {
		m, reader := newTestMetrics(t, false)
		m.RecordAggregation(context.Background(), "fetch", OutcomePartial, "jane@example.com")

		points := sums(t, reader, "aggregation_requests_total")
		require.Len(t, points, 1)
		assert.Equal(t, OutcomePartial, attrValue(points[0], attrOutcome))
		assert.Empty(t, attrValue(points[0], attrUserDomain))
	})

	t.Run("with detailed labels", func(t *testing.T) {
		m, reader := newTestMetrics(t, true)
		m.RecordAggregation(context.Background(), "fetch", OutcomeComplete, "jane@example.com")

		points := sums(t, reader, "aggregation_requests_total")
		require.Len(t, points, 1)
		assert.Equal(t, "example.com", attrValue(points[0], attrUserDomain))
	})
}

func TestMetrics_RecordCredentialLookupAndEvents(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordCredentialLookup(ctx, "CALDAV", LookupMiss)
	m.RecordEvents(ctx, "CALDAV", 3)
	m.RecordEvents(ctx, "CALDAV", 0)

	lookups := sums(t, reader, "credential_lookups_total")
	require.Len(t, lookups, 1)
	assert.Equal(t, LookupMiss, attrValue(lookups[0], attrResult))

	events := sums(t, reader, "aggregated_events_total")
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Value)
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	m.RecordHTTPRequest(context.Background(), "GET", "/readyz", 503, time.Millisecond)

	points := sums(t, reader, "http_requests_total")
	require.Len(t, points, 1)
	assert.Equal(t, "503", attrValue(points[0], attrStatus))
}

func TestMetrics_ZeroValueIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, m := range []*Metrics{nil, {}} {
		assert.NotPanics(t, func() {
			m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Second)
			m.RecordProviderOperation(ctx, "GOOGLE", "fetch", StatusSuccess, time.Second)
			m.RecordAggregation(ctx, "fetch", OutcomeComplete, "")
			m.RecordEvents(ctx, "GOOGLE", 1)
			m.RecordCredentialLookup(ctx, "GOOGLE", LookupHit)
		})
	}
}

func TestUserDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane@Example.COM", "example.com"},
		{"no-at-sign", "unknown"},
		{"trailing@", "unknown"},
		{"a@b@c", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, userDomain(tt.in))
		})
	}
}
