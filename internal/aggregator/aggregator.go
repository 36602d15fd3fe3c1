package aggregator

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/logging"
)

// Refresher silently renews the credentials of an account.
type Refresher interface {
	Refresh(ctx context.Context, email, refreshToken string) (account.Account, error)
}

// Aggregator fetches and merges events across accounts.
type Aggregator struct {
	source         calendar.Source
	refresher      Refresher
	loc            *time.Location
	maxConcurrency int
	maxListeners   int
	metrics        *instrumentation.Metrics
	logger         *slog.Logger

	mu             sync.Mutex
	listeners      []listenerEntry
	nextListenerID int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLocation sets the zone in which all-day events start. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// WithMaxConcurrency bounds the number of concurrent API calls. Zero or
// less means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(a *Aggregator) { a.maxConcurrency = n }
}

// WithMaxListeners overrides DefaultMaxListeners.
func WithMaxListeners(n int) Option {
	return func(a *Aggregator) { a.maxListeners = n }
}

// WithMetrics records aggregation metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator reading from source and refreshing credentials
// through refresher.
func New(source calendar.Source, refresher Refresher, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:       source,
		refresher:    refresher,
		loc:          time.Local,
		maxListeners: DefaultMaxListeners,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	return a
}

// target is one account with the calendars to fetch from it.
type target struct {
	account   account.Account
	calendars []account.CalendarConfig
}

// pair is one calendar of one account.
type pair struct {
	acc account.Account
	cal account.CalendarConfig
}

// pairResult is the outcome of fetching one (account, calendar) pair.
type pairResult struct {
	events []calendar.Event
	used   account.Account
	err    error
}

// FetchWindow returns the events of all visible calendars of accounts in
// [start, end), sorted by effective start time.
//
// Failed accounts and pairs are logged and skipped. Accounts in error status
// that fetch successfully are broadcast as active again. The returned error is
// non-nil only when no events were fetched and at least one failure
// occurred; it is then an *AggregationError.
func (a *Aggregator) FetchWindow(ctx context.Context, accounts []account.Account, start, end time.Time) ([]calendar.Event, error) {
	ctx, span := instrumentation.StartSpan(ctx, "aggregator.fetch_window",
		instrumentation.NewSpanAttributeBuilder().WithWindow(start, end).WithAccounts(len(accounts)).Build()...)
	defer span.End()
	began := time.Now()

	targets, failures := a.resolveTargets(ctx, accounts)

	var pairs []pair
	for _, t := range targets {
		for _, c := range t.calendars {
			pairs = append(pairs, pair{acc: t.account, cal: c})
		}
	}

	results := make([]pairResult, len(pairs))
	g := a.group()
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = a.fetchPair(ctx, p.acc, p.cal, start, end)
			return nil
		})
	}
	_ = g.Wait()

	var events []calendar.Event
	failedPairs := 0
	for i, r := range results {
		if r.err != nil {
			failedPairs++
			failures = append(failures, fmt.Sprintf("%s (%s): %v", pairs[i].acc.Email, calendarName(pairs[i].cal), r.err))
			continue
		}
		events = append(events, r.events...)
	}
	a.recoverFetched(pairs, results)

	a.sort(events)

	result := instrumentation.AggregationSuccess
	var err error
	switch {
	case len(events) == 0 && len(failures) > 0:
		result = instrumentation.AggregationError
		err = &AggregationError{Messages: failures}
		instrumentation.SetSpanError(span, err)
	case len(failures) > 0:
		result = instrumentation.AggregationPartial
		instrumentation.SetSpanSuccess(span)
	default:
		instrumentation.SetSpanSuccess(span)
	}
	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrEvents, len(events)),
		attribute.Int(instrumentation.SpanAttrFailures, len(failures)),
	)
	a.metrics.RecordAggregation(ctx, result, len(events), len(failures), time.Since(began))

	a.logger.Debug("Fetched window",
		logging.Window(start, end),
		"accounts", len(accounts),
		"pairs", len(pairs),
		"failed_pairs", failedPairs,
		"events", len(events))

	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return events, nil
}

// SyncCalendars fetches the calendar list of acc and returns acc with its
// calendars replaced by the ones it owns. Visibility is left to the account
// store merge. A refreshed token is carried over into the result.
func (a *Aggregator) SyncCalendars(ctx context.Context, acc account.Account) (account.Account, error) {
	cals, acc, err := withAuthRetry(ctx, a, acc, func(ctx context.Context, token string) ([]account.CalendarConfig, error) {
		return a.source.ListCalendars(ctx, token)
	})
	if err != nil {
		return account.Account{}, err
	}

	out := acc.Clone()
	out.Calendars = calendar.OwnedCalendars(acc.Email, cals)
	out.Status = account.Active()
	return out, nil
}

// resolveTargets determines the calendars to fetch for each account. Stored
// calendars are filtered to the visible ones; an account without stored
// calendars gets its selected and primary calendars from the calendar list.
func (a *Aggregator) resolveTargets(ctx context.Context, accounts []account.Account) ([]target, []string) {
	targets := make([]target, len(accounts))
	errs := make([]error, len(accounts))

	g := a.group()
	for i, acc := range accounts {
		if len(acc.Calendars) > 0 {
			targets[i] = target{account: acc, calendars: acc.VisibleCalendars()}
			continue
		}
		g.Go(func() error {
			cals, used, err := withAuthRetry(ctx, a, acc, func(ctx context.Context, token string) ([]account.CalendarConfig, error) {
				return a.source.ListCalendars(ctx, token)
			})
			if err != nil {
				errs[i] = err
				a.markFailed(used, err)
				return nil
			}
			if used.Status.IsError() {
				used = a.markRecovered(used)
			}
			targets[i] = target{account: used, calendars: defaultCalendars(cals)}
			return nil
		})
	}
	_ = g.Wait()

	var out []target
	var failures []string
	for i, t := range targets {
		if errs[i] != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", accounts[i].Email, errs[i]))
			continue
		}
		out = append(out, t)
	}
	return out, failures
}

// markFailed broadcasts acc with an error status after a calendar list
// failure, unless the failed refresh already did.
func (a *Aggregator) markFailed(acc account.Account, err error) {
	logging.WithAccount(a.logger, acc.ID).Warn("Failed to fetch calendar list",
		logging.UserHash(acc.Email),
		logging.Err(err))

	if isRefreshFailure(err) {
		return
	}
	failed := acc.Clone()
	failed.Calendars = nil
	failed.Status = account.Failed(err.Error())
	a.broadcast(failed)
}

// markRecovered broadcasts acc as active again and returns the updated
// account. Calendars are left to the store.
func (a *Aggregator) markRecovered(acc account.Account) account.Account {
	logging.WithAccount(a.logger, acc.ID).Info("Account recovered",
		logging.UserHash(acc.Email))

	recovered := acc.Clone()
	recovered.Status = account.Active()
	update := recovered.Clone()
	update.Calendars = nil
	a.broadcast(update)
	return recovered
}

// recoverFetched marks error-status accounts active once one of their pairs
// succeeds. Accounts whose token was refreshed during the fetch are skipped;
// the refresh already broadcast them with the new token.
func (a *Aggregator) recoverFetched(pairs []pair, results []pairResult) {
	refreshed := make(map[string]bool)
	for i, r := range results {
		if r.used.ID != "" && r.used.Token != pairs[i].acc.Token {
			refreshed[pairs[i].acc.ID] = true
		}
	}
	done := make(map[string]bool)
	for i, r := range results {
		acc := pairs[i].acc
		if r.err != nil || !acc.Status.IsError() || refreshed[acc.ID] || done[acc.ID] {
			continue
		}
		done[acc.ID] = true
		a.markRecovered(acc)
	}
}

func (a *Aggregator) fetchPair(ctx context.Context, acc account.Account, cal account.CalendarConfig, start, end time.Time) pairResult {
	events, used, err := withAuthRetry(ctx, a, acc, func(ctx context.Context, token string) ([]calendar.Event, error) {
		return a.source.ListEvents(ctx, token, cal.ID, start, end)
	})
	if err != nil {
		logging.WithAccount(a.logger, acc.ID).Warn("Failed to fetch events",
			logging.UserHash(acc.Email),
			logging.Calendar(cal.ID),
			logging.Err(err))
		return pairResult{used: used, err: err}
	}

	out := make([]calendar.Event, 0, len(events))
	for _, ev := range events {
		ev.AccountID = acc.ID
		ev.AccountColor = cal.BackgroundColor
		ev.IsPrimary = cal.Primary
		ev.CalendarID = cal.ID
		out = append(out, ev)
	}
	return pairResult{events: out, used: used}
}

// sort orders events by effective start; ties are broken by account,
// calendar and event ID so the order never depends on completion order.
func (a *Aggregator) sort(events []calendar.Event) {
	slices.SortStableFunc(events, func(x, y calendar.Event) int {
		if c := x.Start.SortKey(a.loc).Compare(y.Start.SortKey(a.loc)); c != 0 {
			return c
		}
		if c := cmp.Compare(x.AccountID, y.AccountID); c != 0 {
			return c
		}
		if c := cmp.Compare(x.CalendarID, y.CalendarID); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
}

func (a *Aggregator) group() *errgroup.Group {
	g := &errgroup.Group{}
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	return g
}

// defaultCalendars selects the server-side selected calendars and always
// includes the primary one.
func defaultCalendars(cals []account.CalendarConfig) []account.CalendarConfig {
	var out []account.CalendarConfig
	for _, c := range cals {
		if c.Selected || c.Primary {
			out = append(out, c)
		}
	}
	return out
}

func calendarName(c account.CalendarConfig) string {
	if c.Summary != "" {
		return c.Summary
	}
	return c.ID
}
