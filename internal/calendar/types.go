package calendar

import (
	"net/url"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/agenda/internal/account"
)

// DateLayout is the layout of all-day dates.
const DateLayout = "2006-01-02"

// EventTime is either an instant (timed events) or a calendar date
// (all-day events). Exactly one of DateTime and Date is set.
type EventTime struct {
	DateTime time.Time `json:"dateTime,omitzero"`
	Date     string    `json:"date,omitempty"`
}

// IsAllDay reports whether the time is a calendar date.
func (t EventTime) IsAllDay() bool {
	return t.Date != ""
}

// SortKey returns the effective instant used for ordering: the instant
// itself for timed events, or local midnight of the date in loc.
// An unparseable date yields the zero time.
func (t EventTime) SortKey(loc *time.Location) time.Time {
	if !t.IsAllDay() {
		return t.DateTime
	}
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, t.Date, loc)
	if err != nil {
		return time.Time{}
	}
	return d
}

// Event is one occurrence of a calendar event, tagged with the account and
// calendar it was fetched from.
type Event struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Start        EventTime `json:"start"`
	End          EventTime `json:"end"`
	HTMLLink     string    `json:"htmlLink"`
	Status       string    `json:"status"`
	AccountID    string    `json:"accountId"`
	AccountColor string    `json:"accountColor"`
	IsPrimary    bool      `json:"isPrimary"`
	CalendarID   string    `json:"calendarId"`
}

// Key identifies an event across pagination calls.
type Key struct {
	ID        string
	AccountID string
}

// Key returns the deduplication key of the event.
func (e Event) Key() Key {
	return Key{ID: e.ID, AccountID: e.AccountID}
}

// OpenURL returns HTMLLink with an authuser parameter so the event opens in
// the browser session of the right account.
func (e Event) OpenURL(email string) string {
	if e.HTMLLink == "" || email == "" {
		return e.HTMLLink
	}
	u, err := url.Parse(e.HTMLLink)
	if err != nil {
		return e.HTMLLink
	}
	q := u.Query()
	q.Set("authuser", email)
	u.RawQuery = q.Encode()
	return u.String()
}

// Ongoing reports whether a timed event spans now.
func (e Event) Ongoing(now time.Time) bool {
	if e.Start.IsAllDay() || e.End.IsAllDay() {
		return false
	}
	return !now.Before(e.Start.DateTime) && now.Before(e.End.DateTime)
}

// toEvent converts a Google Calendar event. Account fields are left empty.
func toEvent(calendarID string, ev *calendar.Event) Event {
	out := Event{
		ID:         ev.Id,
		Summary:    ev.Summary,
		HTMLLink:   ev.HtmlLink,
		Status:     ev.Status,
		CalendarID: calendarID,
	}
	out.Start = toEventTime(ev.Start)
	out.End = toEventTime(ev.End)
	return out
}

func toEventTime(dt *calendar.EventDateTime) EventTime {
	if dt == nil {
		return EventTime{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return EventTime{DateTime: t}
		}
	}
	return EventTime{Date: dt.Date}
}

// toCalendarConfig converts a calendar list entry. Visible is left to the
// account store, which defaults it to Selected.
func toCalendarConfig(entry *calendar.CalendarListEntry) account.CalendarConfig {
	return account.CalendarConfig{
		ID:              entry.Id,
		Summary:         entry.Summary,
		BackgroundColor: entry.BackgroundColor,
		Primary:         entry.Primary,
		Selected:        entry.Selected,
	}
}
