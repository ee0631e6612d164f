// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for calbridge.
//
// # Metrics
//
// Backend metrics:
//   - provider_operations_total: Counter of backend calls by provider, operation, status
//   - provider_operation_duration_seconds: Histogram of backend call durations
//   - aggregated_events_total: Counter of events each provider contributed
//
// Engine metrics:
//   - aggregation_requests_total: Counter of engine requests by operation and outcome
//     (complete, partial, failed, unauthenticated)
//   - credential_lookups_total: Counter of credential store lookups by provider and result
//
// HTTP metrics (probe and metrics endpoints):
//   - http_requests_total, http_request_duration_seconds
//
// # Tracing
//
// Each engine request opens an aggregate.<operation> span with one
// provider.<PROVIDER>.<operation> client span per backend call.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: calbridge)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordProviderOperation(ctx, "GOOGLE", "fetch", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
