package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Label values and exporter names.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"

	OutcomeComplete        = "complete"
	OutcomePartial         = "partial"
	OutcomeFailed          = "failed"
	OutcomeUnauthenticated = "unauthenticated"

	LookupHit  = "hit"
	LookupMiss = "miss"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval of the otlp and stdout exporters.
	DefaultMetricInterval = 10 * time.Second
)

// Config selects exporters and labels for metrics, traces and the audit trail.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// ServiceInstanceID defaults to the hostname (the pod name on Kubernetes).
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled turns metrics and tracing on. Disabled providers hand out a
	// recorder that drops everything.
	Enabled bool

	// MetricsExporter is prometheus, otlp or stdout. Empty means prometheus.
	MetricsExporter string
	// TracingExporter is otlp, stdout or none. Empty means none.
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without scheme.
	OTLPEndpoint string
	// OTLPInsecure disables TLS towards the collector. Local use only.
	OTLPInsecure bool

	// TraceSamplingRate is the ratio of root traces kept, between 0 and 1.
	TraceSamplingRate float64

	// DetailedLabels adds the user's email domain to aggregation metrics.
	// Keep it disabled unless the set of tenants is small.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig configures the audit trail of calendar writes.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs the raw user identifier instead of its hash.
	IncludePII bool
}

// DefaultConfig reads the configuration from the environment:
//
//	OTEL_SERVICE_NAME, OTEL_SERVICE_INSTANCE_ID, K8S_NAMESPACE (POD_NAMESPACE),
//	K8S_POD_NAME (HOSTNAME), INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
//	TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
//	OTEL_TRACES_SAMPLER_ARG, METRICS_DETAILED_LABELS, AUDIT_LOGGING_ENABLED,
//	AUDIT_LOGGING_INCLUDE_PII
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString("OTEL_SERVICE_NAME", "calbridge"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envString("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:      envString("K8S_NAMESPACE", envString("POD_NAMESPACE", "")),
		K8sPodName:        envString("K8S_POD_NAME", envString("HOSTNAME", "")),
		Enabled:           envOr("INSTRUMENTATION_ENABLED", true, strconv.ParseBool),
		MetricsExporter:   envString("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   envString("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      envOr("OTEL_EXPORTER_OTLP_INSECURE", false, strconv.ParseBool),
		TraceSamplingRate: envOr("OTEL_TRACES_SAMPLER_ARG", 0.1, parseFloat),
		DetailedLabels:    envOr("METRICS_DETAILED_LABELS", false, strconv.ParseBool),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envOr("AUDIT_LOGGING_ENABLED", true, strconv.ParseBool),
			IncludePII: envOr("AUDIT_LOGGING_INCLUDE_PII", false, strconv.ParseBool),
		},
	}
}

// Validate checks exporter names, the sampling rate and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOr parses the variable key, falling back to def when it is unset or
// does not parse.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		return def
	}
	return parsed
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
