package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/shiftengine/internal/config"
	"github.com/rezkam/shiftengine/internal/engine"
	httpserver "github.com/rezkam/shiftengine/internal/infrastructure/http"
	"github.com/rezkam/shiftengine/internal/infrastructure/http/handler"
	"github.com/rezkam/shiftengine/internal/infrastructure/persistence/postgres"
	"github.com/rezkam/shiftengine/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shiftengine: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, logger, err := observability.InitLogger(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		StatementTimeout: cfg.Database.StatementTimeout,
		SessionTimeZone:  cfg.Engine.SessionTimeZone,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	store := postgres.NewStore(pool, logger)
	defer store.Close()

	runner := buildRunner(store, cfg, logger)

	if cfg.HTTP.Enabled {
		return runWithHTTPControlPlane(ctx, runner, cfg, logger)
	}
	return runBatch(ctx, runner, os.Args)
}

func buildRunner(store *postgres.Store, cfg config.Config, logger *slog.Logger) *engine.Runner {
	retryCfg := engine.RetryConfig{MaxRetries: cfg.Engine.MaxRetries, BaseDelay: cfg.Engine.RetryBaseDelay}

	cleanup := engine.NewCleanup(store, engine.CleanupConfig{
		DeleteBatchSize:      cfg.Engine.DeleteBatchSize,
		SleepBetweenBatches:  cfg.Engine.SleepBetweenBatches,
		HistoryRetentionDays: cfg.Engine.HistoryRetentionDays,
		RetryConfig:          retryCfg,
	}, logger)

	finalize := engine.NewFinalize(store, engine.FinalizeConfig{
		AuditRetentionDays: cfg.Engine.AuditRetentionDays,
		AuditFlushBatch:    cfg.Engine.InsertBatchSize,
	}, logger)

	expCfg := engine.ExpansionConfig{
		AdvanceDays:         cfg.Engine.AdvanceDays,
		MonthlyMonthsAhead:  cfg.Engine.MonthlyMonthsAhead,
		InsertBatchSize:     cfg.Engine.InsertBatchSize,
		SleepBetweenBatches: cfg.Engine.SleepBetweenBatches,
		RetryConfig:         retryCfg,
	}

	return engine.NewRunner(store, store, cleanup, expCfg, finalize, cfg.Engine.SessionLeaseTTL, logger)
}

// runBatch is the CLI path: one run, optional ISO-8601 base timestamp
// positional argument, exiting per §6 (0 Completed, 1 Cancelled, 2 otherwise).
func runBatch(ctx context.Context, runner *engine.Runner, args []string) error {
	t0 := time.Now()
	if len(args) > 1 {
		parsed, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return fmt.Errorf("invalid base timestamp %q: %w", args[1], err)
		}
		t0 = parsed
	}

	summary, err := runner.Run(ctx, t0, engine.RunOptions{})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "run finished", slog.String("run_id", summary.RunID), slog.String("status", summary.Status.String()),
		slog.Int("created", summary.Totals.Created), slog.Int("duplicate", summary.Totals.Duplicate))
	return nil
}

func runWithHTTPControlPlane(ctx context.Context, runner *engine.Runner, cfg config.Config, logger *slog.Logger) error {
	sched := handler.NewScheduler(runner, logger)
	server := httpserver.NewServer(sched, httpserver.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		APIKey:       cfg.HTTP.APIKey,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		MaxBodyBytes: cfg.HTTP.MaxBodySize,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// exitCodeFor maps a terminal error to §6's CLI exit codes.
func exitCodeFor(err error) int {
	if engine.IsCancelled(err) {
		return 1
	}
	return 2
}
