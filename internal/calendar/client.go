package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/instrumentation"
)

// Source is the read-only view of the Calendar API the aggregator depends
// on. Each call carries the bearer token to use.
type Source interface {
	ListCalendars(ctx context.Context, token string) ([]account.CalendarConfig, error)
	ListEvents(ctx context.Context, token, calendarID string, timeMin, timeMax time.Time) ([]Event, error)
}

// Client wraps the Google Calendar service for a single bearer token.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
}

// Factory creates a Client per token. It implements Source.
type Factory struct {
	// Endpoint overrides the Calendar API base URL (tests).
	Endpoint string
	// HTTPClient is the base client the bearer transport wraps.
	HTTPClient *http.Client
	// Metrics records Google API operations. May be nil.
	Metrics *instrumentation.Metrics
}

// NewFactory returns a Factory talking to the public Calendar API.
func NewFactory() *Factory {
	return &Factory{}
}

// NewClient creates a Calendar client for the given access token.
//
// The token source is static: the client never refreshes on its own, so an
// invalid token fails with HTTP 401.
func (f *Factory) NewClient(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	base := f.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{svc: svc, metrics: f.Metrics}, nil
}

// ListCalendars implements Source.
func (f *Factory) ListCalendars(ctx context.Context, token string) ([]account.CalendarConfig, error) {
	c, err := f.NewClient(ctx, token)
	if err != nil {
		return nil, &CalendarListError{Err: err}
	}
	return c.ListCalendars(ctx)
}

// ListEvents implements Source.
func (f *Factory) ListEvents(ctx context.Context, token, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	c, err := f.NewClient(ctx, token)
	if err != nil {
		return nil, &EventFetchError{CalendarID: calendarID, Err: err}
	}
	return c.ListEvents(ctx, calendarID, timeMin, timeMax)
}

// ListCalendars lists every calendar the user can at least read, across all
// pages.
func (c *Client) ListCalendars(ctx context.Context) ([]account.CalendarConfig, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, instrumentation.OperationCalendarList)
	defer span.End()
	start := time.Now()

	var calendars []account.CalendarConfig
	err := c.svc.CalendarList.List().
		MinAccessRole("reader").
		Pages(ctx, func(list *calendar.CalendarList) error {
			for _, entry := range list.Items {
				calendars = append(calendars, toCalendarConfig(entry))
			}
			return nil
		})

	c.record(ctx, instrumentation.OperationCalendarList, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, &CalendarListError{Status: httpStatus(err), Err: err}
	}

	instrumentation.SetSpanSuccess(span)
	return calendars, nil
}

// ListEvents lists the event occurrences of one calendar in [timeMin, timeMax).
// Recurring events are expanded by the server.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, instrumentation.OperationEventsList,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).Build()...)
	defer span.End()
	start := time.Now()

	events := []Event{}
	err := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				events = append(events, toEvent(calendarID, ev))
			}
			return nil
		})

	c.record(ctx, instrumentation.OperationEventsList, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, &EventFetchError{CalendarID: calendarID, Status: httpStatus(err), Err: err}
	}

	instrumentation.SetSpanSuccess(span)
	return events, nil
}

func (c *Client) record(ctx context.Context, operation string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	switch {
	case IsUnauthorized(err):
		status = "unauthorized"
	case err != nil:
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, d)
}

func httpStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
