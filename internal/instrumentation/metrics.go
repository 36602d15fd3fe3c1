package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrDomain    = "user_domain"
)

// Metrics provides methods for recording observability metrics.
//
// All Record methods are safe to call on a nil *Metrics or on a Metrics
// created while instrumentation is disabled; they do nothing in that case.
type Metrics struct {
	// HTTP metrics (metrics/health server)
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Aggregation metrics
	aggregationWindowsTotal   metric.Int64Counter
	aggregationDuration       metric.Float64Histogram
	aggregationPairFailures   metric.Int64Counter
	aggregationEventsReturned metric.Int64Counter

	// Scheduler metrics
	schedulerRunsTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
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

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of interactive OAuth logins"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of silent token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.aggregationWindowsTotal, err = meter.Int64Counter(
		"aggregation_windows_total",
		metric.WithDescription("Total number of aggregated fetch windows by result"),
		metric.WithUnit("{window}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_windows_total counter: %w", err)
	}

	m.aggregationDuration, err = meter.Float64Histogram(
		"aggregation_duration_seconds",
		metric.WithDescription("Duration of an aggregated fetch window in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_duration_seconds histogram: %w", err)
	}

	m.aggregationPairFailures, err = meter.Int64Counter(
		"aggregation_pair_failures_total",
		metric.WithDescription("Total number of account/calendar pairs that contributed no events due to an error"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_pair_failures_total counter: %w", err)
	}

	m.aggregationEventsReturned, err = meter.Int64Counter(
		"aggregation_events_total",
		metric.WithDescription("Total number of events returned by aggregated fetch windows"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_events_total counter: %w", err)
	}

	m.schedulerRunsTotal, err = meter.Int64Counter(
		"scheduler_runs_total",
		metric.WithDescription("Total number of background refresh runs by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler_runs_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (calendar, oauth2)
//   - operation: Operation type (calendar_list, events_list, userinfo, token)
//   - status: Result status (success, error or unauthorized)
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an interactive login with result.
// Result should be one of: "success", "failure", "mismatch"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a silent token refresh attempt with result.
// Result should be one of: "success", "failure", "mismatch"
//
// The email is only attached (as its domain) when detailed labels are enabled.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result, email string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && email != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(email)))
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAggregation records one aggregated fetch window.
//
// Parameters:
//   - result: "success" (no failed pair), "partial" (some pairs failed) or "error"
//   - events: number of events returned
//   - failedPairs: number of account/calendar pairs that contributed nothing due to an error
//   - duration: wall time of the whole window
func (m *Metrics) RecordAggregation(ctx context.Context, result string, events, failedPairs int, duration time.Duration) {
	if m == nil || m.aggregationWindowsTotal == nil || m.aggregationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrResult, result))
	m.aggregationWindowsTotal.Add(ctx, 1, attrs)
	m.aggregationDuration.Record(ctx, duration.Seconds(), attrs)

	if m.aggregationEventsReturned != nil && events > 0 {
		m.aggregationEventsReturned.Add(ctx, int64(events))
	}
	if m.aggregationPairFailures != nil && failedPairs > 0 {
		m.aggregationPairFailures.Add(ctx, int64(failedPairs))
	}
}

// RecordSchedulerRun records one background refresh run.
func (m *Metrics) RecordSchedulerRun(ctx context.Context, status string) {
	if m == nil || m.schedulerRunsTotal == nil {
		return
	}

	m.schedulerRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
