// Package server exposes the operational HTTP surface of calbridge: the
// Prometheus /metrics endpoint and the /healthz, /readyz and
// /healthz/detailed probes.
//
// MetricsServer serves the registry of an instrumentation.Provider that uses
// the Prometheus exporter and records a request counter and latency
// histogram for every request it answers.
//
// HealthChecker backs the probes. Liveness always succeeds while the process
// runs. Readiness fails when the checker is marked not ready, once shutdown
// has begun, or when any registered CheckFunc returns an error.
package server
