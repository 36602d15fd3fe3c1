package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/kv"
	"github.com/teemow/agenda/internal/logging"
)

// CacheKey is the kv key holding the cached initial window.
const CacheKey = "events"

// DefaultPageDays is the length of the initial window and of every page.
const DefaultPageDays = 14

// ErrLoadInProgress is returned by LoadMore while another call is running.
var ErrLoadInProgress = errors.New("load already in progress")

// Fetcher returns the merged events of accounts in [start, end).
type Fetcher interface {
	FetchWindow(ctx context.Context, accounts []account.Account, start, end time.Time) ([]calendar.Event, error)
}

// Loader holds the accumulated timeline.
type Loader struct {
	fetcher  Fetcher
	pageDays int
	cache    kv.Store
	now      func() time.Time
	logger   *slog.Logger

	loading atomic.Bool

	mu       sync.RWMutex
	rangeEnd time.Time
	events   []calendar.Event
	seen     map[calendar.Key]struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithPageDays sets the page length in days.
func WithPageDays(days int) Option {
	return func(l *Loader) {
		if days > 0 {
			l.pageDays = days
		}
	}
}

// WithCache stores the initial window in kvs.
func WithCache(kvs kv.Store) Option {
	return func(l *Loader) { l.cache = kvs }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates an empty Loader.
func NewLoader(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher:  fetcher,
		pageDays: DefaultPageDays,
		now:      time.Now,
		logger:   slog.Default(),
		seen:     make(map[calendar.Key]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) page() time.Duration {
	return time.Duration(l.pageDays) * 24 * time.Hour
}

// LoadInitial replaces the timeline with the window [now, now+page) and
// writes it to the cache when one is configured. A cache write failure is
// logged, not returned.
func (l *Loader) LoadInitial(ctx context.Context, accounts []account.Account) ([]calendar.Event, error) {
	start := l.now()
	end := start.Add(l.page())

	events, err := l.fetcher.FetchWindow(ctx, accounts, start, end)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.events = nil
	l.seen = make(map[calendar.Key]struct{}, len(events))
	l.appendUnseen(events)
	l.rangeEnd = end
	snapshot := l.snapshot()
	l.mu.Unlock()

	if l.cache != nil {
		if err := l.writeCache(ctx, snapshot); err != nil {
			l.logger.Warn("Failed to cache events", logging.Err(err))
		}
	}
	return snapshot, nil
}

// Cached returns the events written by the last LoadInitial, or nil if
// nothing was cached.
func (l *Loader) Cached(ctx context.Context) ([]calendar.Event, error) {
	if l.cache == nil {
		return nil, nil
	}
	data, err := l.cache.Get(ctx, CacheKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached events: %w", err)
	}

	var events []calendar.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode cached events: %w", err)
	}
	return events, nil
}

// LoadMore fetches the next page after RangeEnd and appends the events not
// seen before. It returns the number of appended events.
//
// The range advances after every successful fetch, even when nothing new
// was found, so repeated calls always move forward. A failed fetch leaves
// the state untouched. LoadMore returns ErrLoadInProgress without blocking
// if another call is running.
func (l *Loader) LoadMore(ctx context.Context, accounts []account.Account) (int, error) {
	if !l.loading.CompareAndSwap(false, true) {
		return 0, ErrLoadInProgress
	}
	defer l.loading.Store(false)

	l.mu.RLock()
	start := l.rangeEnd
	l.mu.RUnlock()
	if start.IsZero() {
		start = l.now()
	}
	end := start.Add(l.page())

	events, err := l.fetcher.FetchWindow(ctx, accounts, start, end)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	added := l.appendUnseen(events)
	l.rangeEnd = end

	l.logger.Debug("Loaded more events",
		"range_end", end.Format(time.RFC3339),
		"fetched", len(events),
		"added", added)
	return added, nil
}

// Events returns a copy of the accumulated timeline.
func (l *Loader) Events() []calendar.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// RangeEnd returns the exclusive end of the loaded range, or the zero time
// before the first load.
func (l *Loader) RangeEnd() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rangeEnd
}

// appendUnseen must be called with mu held.
func (l *Loader) appendUnseen(events []calendar.Event) int {
	added := 0
	for _, ev := range events {
		k := ev.Key()
		if _, ok := l.seen[k]; ok {
			continue
		}
		l.seen[k] = struct{}{}
		l.events = append(l.events, ev)
		added++
	}
	return added
}

func (l *Loader) snapshot() []calendar.Event {
	out := make([]calendar.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Loader) writeCache(ctx context.Context, events []calendar.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	return l.cache.Set(ctx, CacheKey, data)
}
