// Package server exposes the operational endpoints of agenda serve.
//
// MetricsServer listens on a dedicated address and serves:
//   - /metrics: Prometheus scrape endpoint, when the prometheus exporter is active
//   - /healthz: liveness
//   - /readyz: readiness, based on the last background refresh
//   - /healthz/detailed: uptime and the last refresh
//
// Every request is counted in the http_requests_total metric.
package server
