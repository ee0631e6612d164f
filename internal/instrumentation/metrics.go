package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrProvider   = "provider"
	attrOutcome    = "outcome"
	attrResult     = "result"
	attrUserDomain = "user_domain"
)

// Metrics records calendar aggregation metrics.
// The zero value is a no-op recorder.
type Metrics struct {
	// HTTP metrics for the probe and metrics endpoints
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Backend calls
	providerOperationsTotal   metric.Int64Counter
	providerOperationDuration metric.Float64Histogram

	// Engine requests
	aggregationRequestsTotal metric.Int64Counter
	aggregatedEventsTotal    metric.Int64Counter

	credentialLookupsTotal metric.Int64Counter

	// detailedLabels adds the user's email domain to aggregation metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.providerOperationsTotal, err = meter.Int64Counter(
		"provider_operations_total",
		metric.WithDescription("Total number of calendar backend operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_operations_total counter: %w", err)
	}

	m.providerOperationDuration, err = meter.Float64Histogram(
		"provider_operation_duration_seconds",
		metric.WithDescription("Calendar backend operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_operation_duration_seconds histogram: %w", err)
	}

	m.aggregationRequestsTotal, err = meter.Int64Counter(
		"aggregation_requests_total",
		metric.WithDescription("Total number of aggregated calendar requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_requests_total counter: %w", err)
	}

	m.aggregatedEventsTotal, err = meter.Int64Counter(
		"aggregated_events_total",
		metric.WithDescription("Total number of events returned by backends"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregated_events_total counter: %w", err)
	}

	m.credentialLookupsTotal, err = meter.Int64Counter(
		"credential_lookups_total",
		metric.WithDescription("Total number of credential store lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_lookups_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordProviderOperation records one call against a calendar backend.
//
// Parameters:
//   - provider: backend name (GOOGLE, OUTLOOK, CALDAV)
//   - operation: fetch, create, update or delete
//   - status: StatusSuccess, StatusError or StatusTimeout
func (m *Metrics) RecordProviderOperation(ctx context.Context, provider, operation, status string, duration time.Duration) {
	if m == nil || m.providerOperationsTotal == nil || m.providerOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)

	m.providerOperationsTotal.Add(ctx, 1, attrs)
	m.providerOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAggregation records the outcome of one engine request.
// The user's domain is only attached when detailed labels are enabled.
func (m *Metrics) RecordAggregation(ctx context.Context, operation, outcome, userID string) {
	if m == nil || m.aggregationRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrOutcome, outcome),
	}
	if m.detailedLabels && userID != "" {
		attrs = append(attrs, attribute.String(attrUserDomain, userDomain(userID)))
	}

	m.aggregationRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEvents counts events a backend contributed to a merged result.
func (m *Metrics) RecordEvents(ctx context.Context, provider string, n int) {
	if m == nil || m.aggregatedEventsTotal == nil || n == 0 {
		return
	}
	m.aggregatedEventsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrProvider, provider)))
}

// RecordCredentialLookup records a credential store lookup.
// Result should be one of: LookupHit, LookupMiss
func (m *Metrics) RecordCredentialLookup(ctx context.Context, provider, result string) {
	if m == nil || m.credentialLookupsTotal == nil {
		return
	}

	m.credentialLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	))
}

// userDomain returns the domain part of an email-shaped user id, or
// "unknown". Only the domain is used as a label to bound cardinality.
func userDomain(userID string) string {
	_, domain, ok := strings.Cut(userID, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return strings.ToLower(domain)
}
