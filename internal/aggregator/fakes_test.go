package aggregator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/google"
)

// fakeSource serves calendars and events per access token. Unknown tokens
// are rejected with HTTP 401, like the Calendar API.
type fakeSource struct {
	mu sync.Mutex
	// calendars maps token to the calendar list.
	calendars map[string][]account.CalendarConfig
	// events maps token and calendar ID to events.
	events map[string]map[string][]calendar.Event
	// failing maps calendar ID to a non-auth error.
	failing map[string]error
	// listErr, when set, fails every calendar list call.
	listErr error

	eventCalls map[string]int
	listCalls  int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calendars:  map[string][]account.CalendarConfig{},
		events:     map[string]map[string][]calendar.Event{},
		failing:    map[string]error{},
		eventCalls: map[string]int{},
	}
}

func (f *fakeSource) addEvents(token, calendarID string, evs ...calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events[token] == nil {
		f.events[token] = map[string][]calendar.Event{}
	}
	f.events[token][calendarID] = append(f.events[token][calendarID], evs...)
}

func (f *fakeSource) ListCalendars(_ context.Context, token string) ([]account.CalendarConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, &calendar.CalendarListError{Status: http.StatusInternalServerError, Err: f.listErr}
	}
	cals, ok := f.calendars[token]
	if !ok {
		return nil, &calendar.CalendarListError{Status: http.StatusUnauthorized, Err: errors.New("invalid credentials")}
	}
	return append([]account.CalendarConfig(nil), cals...), nil
}

func (f *fakeSource) ListEvents(_ context.Context, token, calendarID string, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls[token+"/"+calendarID]++

	if err, ok := f.failing[calendarID]; ok {
		return nil, &calendar.EventFetchError{CalendarID: calendarID, Status: http.StatusInternalServerError, Err: err}
	}
	byCal, ok := f.events[token]
	if !ok {
		return nil, &calendar.EventFetchError{CalendarID: calendarID, Status: http.StatusUnauthorized, Err: errors.New("invalid credentials")}
	}

	out := []calendar.Event{}
	for _, ev := range byCal[calendarID] {
		s := ev.Start.SortKey(time.UTC)
		if !s.Before(timeMin) && s.Before(timeMax) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) calls(token, calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventCalls[token+"/"+calendarID]
}

// fakeRefresher returns canned refresh results per email.
type fakeRefresher struct {
	mu      sync.Mutex
	results map[string]account.Account
	errs    map[string]error
	calls   map[string]int
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{
		results: map[string]account.Account{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeRefresher) Refresh(_ context.Context, email, _ string) (account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[email]++
	if err, ok := f.errs[email]; ok {
		return account.Account{}, err
	}
	acc, ok := f.results[email]
	if !ok {
		return account.Account{}, &google.AuthError{Email: email, Op: google.OpRefresh, Err: errors.New("invalid_grant")}
	}
	return acc, nil
}

func (f *fakeRefresher) callCount(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[email]
}

// recorder collects broadcast accounts.
type recorder struct {
	mu  sync.Mutex
	got []account.Account
}

func (r *recorder) listen(acc account.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, acc)
}

func (r *recorder) all() []account.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]account.Account(nil), r.got...)
}
