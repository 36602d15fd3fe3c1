package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t, false)

	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationEventsList, StatusSuccess, 200*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationCalendarList, StatusError, 500*time.Millisecond)

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["google_api_operations_total"]))
	assert.Contains(t, got, "google_api_operation_duration_seconds")
}

func TestMetrics_RecordAggregation(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t, false)

	m.RecordAggregation(ctx, AggregationPartial, 12, 1, time.Second)
	m.RecordAggregation(ctx, AggregationError, 0, 3, time.Second)

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["aggregation_windows_total"]))
	assert.Equal(t, int64(12), sumOf(t, got["aggregation_events_total"]))
	assert.Equal(t, int64(4), sumOf(t, got["aggregation_pair_failures_total"]))
}

func TestMetrics_RecordOAuthTokenRefresh_DetailedLabels(t *testing.T) {
	ctx := context.Background()

	for _, detailed := range []bool{false, true} {
		m, reader := newTestMetrics(t, detailed)
		m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess, "jane@example.com")

		sum := collect(t, reader)["oauth_token_refresh_total"].Data.(metricdata.Sum[int64])
		require.Len(t, sum.DataPoints, 1)
		_, hasDomain := sum.DataPoints[0].Attributes.Value(attrDomain)
		assert.Equal(t, detailed, hasDomain)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest(ctx, "GET", "/metrics", 200, time.Millisecond)
		m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationEventsList, StatusSuccess, time.Millisecond)
		m.RecordOAuthAuth(ctx, OAuthResultSuccess)
		m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure, "")
		m.RecordAggregation(ctx, AggregationSuccess, 1, 0, time.Millisecond)
		m.RecordSchedulerRun(ctx, StatusSuccess)
	})

	empty := &Metrics{}
	assert.NotPanics(t, func() {
		empty.RecordAggregation(ctx, AggregationSuccess, 1, 0, time.Millisecond)
		empty.RecordSchedulerRun(ctx, StatusError)
	})
}

func TestExtractUserDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane@example.com", "example.com"},
		{"user@gmail.com", "gmail.com"},
		{"invalid", "unknown"},
		{"trailing@", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractUserDomain(tt.email))
		})
	}
}
