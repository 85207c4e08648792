// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for deskforge.
//
// Logging wraps zerolog with field helpers for the identifiers that matter
// during a reconciliation run (run ID, domain, resource). Metrics cover run
// and per-domain durations, action outcomes, and confirmation prompt
// resolutions. Tracing is disabled by default and emits one span per run,
// per domain, and per applied action when enabled.
package telemetry
