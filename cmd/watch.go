package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/aggregate"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/server"
)

func newWatchCmd() *cobra.Command {
	var (
		interval       time.Duration
		window         time.Duration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically fetch upcoming events and serve metrics",
		Long: `Fetch the events of the next window from every connected calendar at a fixed
interval until interrupted. The credentials file is re-read before each fetch
so tokens refreshed by the authorization flow are picked up.

Prometheus metrics and health probes are served on a dedicated port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			if window <= 0 {
				return fmt.Errorf("--window must be positive")
			}

			shutdownCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(shutdownCtx, cmd)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.MetricsAddr
			}
			return runWatch(shutdownCtx, a, interval, window, metricsEnabled, metricsAddr)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Time between fetches")
	cmd.Flags().DurationVar(&window, "window", defaultListWindow, "Length of the fetched range, starting now")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Serve metrics and health probes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	return cmd
}

func runWatch(ctx context.Context, a *app, interval, window time.Duration, metricsEnabled bool, metricsAddr string) error {
	health := server.NewHealthChecker()
	health.SetReady(false)
	health.AddCheck("providers", func() error {
		if len(a.engine.ConfiguredProviders()) == 0 {
			return aggregate.ErrNoConfiguredProviders
		}
		return nil
	})

	var metricsServer *server.MetricsServer
	if metricsEnabled && a.instr.Enabled() && a.instr.Gatherer() != nil {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			InstrumentationProvider: a.instr,
			Health:                  health,
			Logger:                  a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		serverErr := make(chan error, 1)
		go func() {
			serverErr <- metricsServer.Start()
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("error shutting down metrics server", logging.Err(err))
			}
		}()

		// Surface a bind failure before the first fetch.
		select {
		case err := <-serverErr:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
		case <-time.After(100 * time.Millisecond):
		}
	} else if metricsEnabled {
		a.logger.Info("metrics server disabled, instrumentation does not export prometheus metrics")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := watchOnce(ctx, a, window); err != nil {
			if errors.Is(err, aggregate.ErrNoConfiguredProviders) {
				return err
			}
			a.logger.Warn("fetch failed", logging.Err(err))
		} else {
			health.SetReady(true)
		}

		select {
		case <-ctx.Done():
			health.MarkShuttingDown()
			a.logger.Info("shutdown signal received, stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// watchOnce reloads the credentials and fetches one window.
func watchOnce(ctx context.Context, a *app, window time.Duration) error {
	if _, err := a.loadCredentials(); err != nil {
		return err
	}

	start := time.Now()
	report, err := a.engine.FetchAllEventsReport(ctx, a.user, start, start.Add(window))
	if err != nil {
		return err
	}

	a.logger.Info("fetched events",
		logging.Count(len(aggregate.Events(report))),
		logging.Status(report.Outcome()),
		logging.Duration(time.Since(start)))
	return nil
}
