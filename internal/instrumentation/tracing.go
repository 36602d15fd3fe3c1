package instrumentation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the agenda module.
const TracerName = "github.com/teemow/agenda"

// Span attribute keys.
const (
	// SpanAttrService is the Google service name attribute.
	SpanAttrService = "google.service"

	// SpanAttrOperation is the operation type attribute.
	SpanAttrOperation = "google.operation"

	// SpanAttrAccount is the account ID attribute (never the email).
	SpanAttrAccount = "agenda.account"

	// SpanAttrCalendar is the calendar ID attribute.
	SpanAttrCalendar = "agenda.calendar"

	// SpanAttrWindowStart and SpanAttrWindowEnd bound a fetch window.
	SpanAttrWindowStart = "agenda.window_start"
	SpanAttrWindowEnd   = "agenda.window_end"

	// SpanAttrAccounts is the number of accounts in a fetch window.
	SpanAttrAccounts = "agenda.accounts"

	// SpanAttrEvents is the number of events returned.
	SpanAttrEvents = "agenda.events"

	// SpanAttrFailures is the number of failed account/calendar pairs.
	SpanAttrFailures = "agenda.failures"

	// SpanAttrRetried marks an operation that was retried after a token refresh.
	SpanAttrRetried = "agenda.retried"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithAccount adds the account ID attribute.
func (b *SpanAttributeBuilder) WithAccount(accountID string) *SpanAttributeBuilder {
	if accountID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrAccount, accountID))
	}
	return b
}

// WithCalendar adds the calendar ID attribute.
func (b *SpanAttributeBuilder) WithCalendar(calendarID string) *SpanAttributeBuilder {
	if calendarID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrCalendar, calendarID))
	}
	return b
}

// WithWindow adds the fetch window bounds.
func (b *SpanAttributeBuilder) WithWindow(start, end time.Time) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrWindowStart, start.Format(time.RFC3339)),
		attribute.String(SpanAttrWindowEnd, end.Format(time.RFC3339)),
	)
	return b
}

// WithAccounts adds the number of accounts.
func (b *SpanAttributeBuilder) WithAccounts(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrAccounts, n))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartGoogleAPISpan starts a span for Google API operations.
// Includes service and operation attributes.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
