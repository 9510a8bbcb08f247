// Package main provides the mensad binary entry point.
// Mensad exposes the Mensa meal-credit ledger engine over HTTP and runs
// the operational batch jobs (daily sweep, receipt resend).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/audithook"
	"github.com/xraph/mensa/notify"
	"github.com/xraph/mensa/observability"
	"github.com/xraph/mensa/store"
	"github.com/xraph/mensa/store/memory"
	mongostore "github.com/xraph/mensa/store/mongo"
	"github.com/xraph/mensa/store/sqlite"
)

const (
	appName = "mensad"
	version = "0.1.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "School meal-credit ledger daemon",
		Long: `Mensad runs the Mensa meal-credit ledger engine.

It serves the HTTP API for accounts, consumption, token purchases,
free-meal periods and holidays, and runs the operational batch jobs:
the idempotent daily sweep and the receipt resend queue.

Configuration is read from MENSA_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), sweepCmd(), resendCmd(), versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides MENSA_ADDR)")

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the daily period sweep once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return withEngine(cmd.Context(), cfg, func(ctx context.Context, eng *mensa.Engine) error {
				res, err := eng.RunDailySweep(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("sweep: activated=%d deactivated=%d\n", res.Activated, res.Deactivated)
				return nil
			})
		},
	}
}

func resendCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Retry pending receipt emails once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return withEngine(cmd.Context(), cfg, func(ctx context.Context, eng *mensa.Engine) error {
				res, err := eng.ResendReceipts(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Printf("resend: attempted=%d sent=%d\n", res.Attempted, res.Sent)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum receipts to retry")

	return cmd
}

// runServe builds the engine, mounts the API and blocks until shutdown.
func runServe(ctx context.Context, cfg Config) error {
	logger := newLogger(cfg.LogLevel)

	return withEngine(ctx, cfg, func(ctx context.Context, eng *mensa.Engine) error {
		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           newServer(eng, logger, cfg.Metrics).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		logger.Info("mensad listening", "addr", cfg.Addr, "driver", cfg.Driver)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})
}

// withEngine opens the configured store, starts an engine around it, runs
// fn, and tears everything down.
func withEngine(ctx context.Context, cfg Config, fn func(context.Context, *mensa.Engine) error) error {
	logger := newLogger(cfg.LogLevel)

	s, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []mensa.Option{
		mensa.WithLogger(logger),
		mensa.WithMinPeriodDays(cfg.MinPeriodDays),
		mensa.WithPlugin(audithook.New(slogRecorder(logger), audithook.WithLogger(logger))),
	}
	if cfg.Metrics {
		factory := observability.NewPrometheusFactory(prometheus.DefaultRegisterer)
		opts = append(opts, mensa.WithPlugin(observability.NewMetricsExtension(factory)))
	}
	if cfg.LogReceipts {
		opts = append(opts, mensa.WithNotifier(notify.NewLogger(logger)))
	}

	eng := mensa.New(s, opts...)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = eng.Stop() }() //nolint:errcheck // best-effort shutdown

	return fn(ctx, eng)
}

// openStore builds the configured storage backend. The returned cleanup
// releases driver resources not owned by the store itself.
func openStore(ctx context.Context, cfg Config) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case "memory":
		return memory.New(), noop, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, noop, fmt.Errorf("mensad: connect mongo: %w", err)
		}
		cleanup := func() { _ = client.Disconnect(ctx) } //nolint:errcheck // best-effort
		return mongostore.New(client, cfg.MongoDatabase), cleanup, nil
	default:
		return nil, noop, fmt.Errorf("mensad: unknown driver %q", cfg.Driver)
	}
}

// slogRecorder bridges audit events to structured logs. A deployment with
// a real audit backend swaps this for its own Recorder.
func slogRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
		)
		return nil
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
