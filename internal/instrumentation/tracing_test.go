package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanAttributeBuilder(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	attrs := NewSpanAttributeBuilder().
		WithAccount("acc-1").
		WithCalendar("primary").
		WithWindow(start, start.AddDate(0, 0, 14)).
		WithAccounts(2).
		Build()

	got := map[string]interface{}{}
	for _, a := range attrs {
		got[string(a.Key)] = a.Value.AsInterface()
	}

	assert.Equal(t, "acc-1", got[SpanAttrAccount])
	assert.Equal(t, "primary", got[SpanAttrCalendar])
	assert.Equal(t, "2024-03-01T00:00:00Z", got[SpanAttrWindowStart])
	assert.Equal(t, "2024-03-15T00:00:00Z", got[SpanAttrWindowEnd])
	assert.Equal(t, int64(2), got[SpanAttrAccounts])
}

func TestSpanAttributeBuilder_SkipsEmpty(t *testing.T) {
	attrs := NewSpanAttributeBuilder().WithAccount("").WithCalendar("").Build()
	assert.Empty(t, attrs)
}

func TestStartGoogleAPISpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartGoogleAPISpan(context.Background(), ServiceCalendar, OperationEventsList)
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetSpanID(ctx))
	SetSpanError(span, errors.New("boom"))
	span.End()

	_, plain := StartSpan(context.Background(), "plain")
	plain.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "google.calendar.events_list", spans[0].Name)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
	assert.Len(t, spans[0].Events, 1, "error recorded as span event")
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetSpanID(context.Background()))
}
