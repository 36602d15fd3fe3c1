package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/aggregator"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/config"
	"github.com/teemow/agenda/internal/google"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/kv"
	"github.com/teemow/agenda/internal/logging"
	"github.com/teemow/agenda/internal/timeline"
)

// app wires the components a command needs.
type app struct {
	cfg        *config.Config
	loc        *time.Location
	logger     *slog.Logger
	kv         kv.Store
	accounts   *account.Store
	google     *google.Provider
	aggregator *aggregator.Aggregator
	audit      *instrumentation.AuditLogger

	removeListener func()
}

// appOptions customizes newApp.
type appOptions struct {
	// authorizer runs interactive logins; nil for commands that never log in.
	authorizer google.Authorizer
	// metrics records API and aggregation metrics; nil disables them.
	metrics *instrumentation.Metrics
	// audit configures account audit logging; defaults to the environment.
	audit *instrumentation.AuditLoggingConfig
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(w io.Writer, cfg *config.Config, debug bool) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

func newApp(cmd *cobra.Command, opts *rootOptions, appOpts appOptions) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg, opts.debug)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	accounts := account.NewStore(store, logger)
	if err := accounts.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	providerOpts := []google.Option{google.WithMetrics(appOpts.metrics), google.WithLogger(logger)}
	if appOpts.authorizer != nil {
		providerOpts = append(providerOpts, google.WithAuthorizer(appOpts.authorizer))
	}
	provider := google.NewProvider(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
	}, providerOpts...)

	agg := aggregator.New(&calendar.Factory{Metrics: appOpts.metrics}, provider,
		aggregator.WithLocation(loc),
		aggregator.WithMaxConcurrency(cfg.MaxConcurrency),
		aggregator.WithMetrics(appOpts.metrics),
		aggregator.WithLogger(logger))

	// Refreshed tokens and failed accounts flow back into the store.
	remove, err := agg.AddRefreshListener(accounts.HandleRefresh(ctx))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	auditConfig := instrumentation.DefaultConfig().AuditLogging
	if appOpts.audit != nil {
		auditConfig = *appOpts.audit
	}

	return &app{
		cfg:            cfg,
		loc:            loc,
		logger:         logger,
		kv:             store,
		accounts:       accounts,
		google:         provider,
		aggregator:     agg,
		audit:          instrumentation.NewAuditLogger(logger.With("component", "audit"), auditConfig),
		removeListener: remove,
	}, nil
}

// requireGoogle fails early for commands that talk to Google.
func (a *app) requireGoogle() error {
	return a.cfg.RequireGoogle()
}

// newLoader creates a timeline loader caching the initial window in the
// configured storage.
func (a *app) newLoader() *timeline.Loader {
	return timeline.NewLoader(a.aggregator,
		timeline.WithPageDays(a.cfg.PageDays),
		timeline.WithCache(a.kv),
		timeline.WithLogger(a.logger))
}

// account resolves an account by ID or email.
func (a *app) account(ref string) (account.Account, error) {
	if acc, ok := a.accounts.Get(ref); ok {
		return acc, nil
	}
	for _, acc := range a.accounts.List() {
		if acc.Email == ref {
			return acc, nil
		}
	}
	return account.Account{}, fmt.Errorf("no account %q; see \"agenda accounts list\"", ref)
}

func (a *app) Close() {
	if a.removeListener != nil {
		a.removeListener()
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("Failed to close storage", logging.Err(err))
	}
}
