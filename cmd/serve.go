package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/logging"
	"github.com/teemow/agenda/internal/scheduler"
	"github.com/teemow/agenda/internal/server"
)

// metricsListenGrace is how long serve waits for an early listen error.
const metricsListenGrace = 100 * time.Millisecond

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		metricsAddr string
		noMetrics   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh the timeline and the badge in the background",
		Long: `Run in the foreground and refresh the timeline on the configured cron
schedule ("*/15 * * * *" by default). Each refresh fetches the initial
window, stores it in the events cache and logs the badge. A refresh also
runs whenever another agenda process changes the connected accounts.

When metrics are enabled, Prometheus metrics and health endpoints are served
on a dedicated address:
  /metrics        Prometheus metrics
  /healthz        Liveness
  /readyz         Readiness, ready after the first successful refresh
  /healthz/detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, metricsAddr, noMetrics)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Override the metrics server address")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the metrics server")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, metricsAddr string, noMetrics bool) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.RequireGoogle(); err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if noMetrics {
		cfg.Metrics.Enabled = false
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.ApplyOverrides(cfg.Metrics.Enabled, cfg.Metrics.Exporter, cfg.Metrics.Tracing)

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	a, err := newApp(cmd, opts, appOptions{
		metrics: provider.Metrics(),
		audit:   &instrConfig.AuditLogging,
	})
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return err
	}
	defer a.Close()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	sched, err := scheduler.New(cfg.Refresh, a.accounts, a.newLoader(), scheduler.LogSink{Logger: a.logger},
		scheduler.WithMetrics(provider.Metrics()),
		scheduler.WithLogger(a.logger))
	if err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() {
		health := server.NewHealthChecker(sched)
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
		}()

		// Start returns early only on a listen error.
		select {
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(metricsListenGrace):
		}
		health.SetReady(true)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	go func() {
		if err := sched.Watch(ctx, a.kv); err != nil && ctx.Err() == nil {
			a.logger.Warn("Account watcher stopped", logging.Err(err))
		}
	}()

	a.logger.Info("Serving", "schedule", cfg.Refresh, "accounts", len(a.accounts.List()))
	<-ctx.Done()
	a.logger.Info("Shutdown signal received, stopping")
	return nil
}
