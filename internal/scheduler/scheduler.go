// Package scheduler refreshes the timeline and the badge in the background.
//
// A run reloads the accounts from storage, fetches the initial window,
// computes the badge and publishes it to a BadgeSink. Runs are triggered by
// a cron schedule and, when the storage backend supports it, by changes to
// the persisted accounts made by other agenda processes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/badge"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/kv"
	"github.com/teemow/agenda/internal/logging"
)

// Run status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Accounts is the account state a run reads.
type Accounts interface {
	// Init reloads the persisted accounts.
	Init(ctx context.Context) error
	List() []account.Account
}

// Loader fetches the initial window.
type Loader interface {
	LoadInitial(ctx context.Context, accounts []account.Account) ([]calendar.Event, error)
}

// BadgeSink receives the badge computed by each successful run.
type BadgeSink interface {
	Publish(ctx context.Context, b badge.Badge) error
}

// LogSink publishes badges to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs b at info level.
func (s LogSink) Publish(_ context.Context, b badge.Badge) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"text", b.Text, "tier", string(b.Tier), "color", b.Color}
	if b.Event != nil {
		attrs = append(attrs, "event", b.Event.Summary)
	}
	logger.Info("Badge updated", attrs...)
	return nil
}

// Run describes one completed run.
type Run struct {
	Time     time.Time
	Duration time.Duration
	Events   int
	Badge    badge.Badge
	Err      error
}

// Scheduler runs refreshes on a cron schedule.
type Scheduler struct {
	schedule string
	accounts Accounts
	loader   Loader
	sink     BadgeSink
	now      func() time.Time
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	cron    *cron.Cron
	running atomic.Bool

	mu      sync.RWMutex
	lastRun *Run
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics records scheduler runs.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler for a standard five-field cron schedule.
func New(schedule string, accounts Accounts, loader Loader, sink BadgeSink, opts ...Option) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s := &Scheduler{
		schedule: schedule,
		accounts: accounts,
		loader:   loader,
		sink:     sink,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithOperation(s.logger, "scheduler.refresh")
	return s, nil
}

// Start runs once immediately, then on every tick of the schedule until
// ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := logging.NewCronAdapter(s.logger)
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	if _, err := s.cron.AddFunc(s.schedule, func() { _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	_ = s.RunOnce(ctx)
	s.cron.Start()
	s.logger.Info("Scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Watch triggers a run every time the persisted accounts change. It
// returns immediately if the store cannot watch keys.
func (s *Scheduler) Watch(ctx context.Context, store kv.Store) error {
	w, ok := store.(kv.Watcher)
	if !ok {
		s.logger.Debug("Storage backend does not support change notifications")
		return nil
	}
	return w.Watch(ctx, account.StorageKey, func() {
		s.logger.Debug("Accounts changed, refreshing")
		_ = s.RunOnce(ctx)
	})
}

// RunOnce performs a single refresh. A run requested while another one is
// in progress is skipped and reports nil.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordSchedulerRun(ctx, StatusSkipped)
		s.logger.Debug("Refresh already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := s.now()
	run := Run{Time: start}
	run.Err = s.run(ctx, &run)
	run.Duration = s.now().Sub(start)

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()

	if run.Err != nil {
		s.metrics.RecordSchedulerRun(ctx, StatusError)
		s.logger.Warn("Refresh failed", logging.Err(run.Err))
		return run.Err
	}
	s.metrics.RecordSchedulerRun(ctx, StatusSuccess)
	s.logger.Debug("Refresh completed", "events", run.Events, "duration", run.Duration)
	return nil
}

func (s *Scheduler) run(ctx context.Context, run *Run) error {
	if err := s.accounts.Init(ctx); err != nil {
		return fmt.Errorf("failed to reload accounts: %w", err)
	}
	accounts := s.accounts.List()
	if len(accounts) == 0 {
		return s.sink.Publish(ctx, badge.Badge{})
	}

	events, err := s.loader.LoadInitial(ctx, accounts)
	if err != nil {
		return err
	}
	run.Events = len(events)
	run.Badge = badge.Compute(events, s.now())

	if err := s.sink.Publish(ctx, run.Badge); err != nil {
		return fmt.Errorf("failed to publish badge: %w", err)
	}
	return nil
}

// LastRun returns the most recent completed run, or nil before the first.
func (s *Scheduler) LastRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	r := *s.lastRun
	return &r
}
