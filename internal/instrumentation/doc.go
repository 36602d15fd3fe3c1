// Package instrumentation provides OpenTelemetry instrumentation for agenda.
//
// # Metrics
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of interactive logins by result
//   - oauth_token_refresh_total: Counter of silent token refreshes by result
//
// Aggregation Metrics:
//   - aggregation_windows_total: Counter of fetch windows by result (success, partial, error)
//   - aggregation_duration_seconds: Histogram of fetch window durations
//   - aggregation_pair_failures_total: Counter of failed account/calendar pairs
//   - aggregation_events_total: Counter of events returned
//
// Server Metrics:
//   - http_requests_total, http_request_duration_seconds: metrics/health server traffic
//   - scheduler_runs_total: Counter of background refresh runs by status
//
// # Tracing
//
// Spans are created for every aggregated fetch window (aggregator.fetch_window)
// and every Google API call (google.<service>.<operation>).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: agenda)
//
// The metrics section of the agenda config file overrides these.
package instrumentation
