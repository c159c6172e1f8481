// Package main runs the call verification service:
// - Verification (scheduled): resolves due PENDING calls against price history
// - Backfill (on demand): stores missing price-history artifacts
// - HTTP API: leaderboard, artifacts, token data, admin triggers, event stream
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"memecoin-calls/internal/api"
	"memecoin-calls/internal/app"
	"memecoin-calls/internal/backfill"
	"memecoin-calls/internal/config"
	"memecoin-calls/internal/events"
	"memecoin-calls/internal/leaderboard"
	"memecoin-calls/internal/logging"
	"memecoin-calls/internal/pacer"
	"memecoin-calls/internal/verification"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", false, "Apply embedded schema migrations on startup")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides config)")
	noSchedule := flag.Bool("no-schedule", false, "Disable the recurring verification trigger")

	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.Storage.UseMemory = true
	}
	if *migrate {
		cfg.Storage.Migrate = true
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *noSchedule {
		cfg.Verification.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg.Storage, cfg.HTTP.PublicBaseURL, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()

	provider, closeProvider, err := app.NewProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create price provider: %w", err)
	}
	defer closeProvider()

	hub := events.NewHub(logger)

	// One limiter paces every provider request made by batch jobs.
	shared := pacer.New(cfg.Verification.ItemDelay)

	verifier := verification.NewVerifier(verification.Options{
		Calls:         stores.Calls,
		Provider:      provider,
		Artifacts:     stores.Artifacts,
		JobRuns:       stores.JobRuns,
		Publisher:     hub,
		Pacer:         shared,
		FetchTimeout:  cfg.Verification.FetchTimeout,
		MaxPendingAge: cfg.Verification.MaxPendingAge,
		Logger:        logger,
	})

	var backfiller *backfill.Backfiller
	if stores.Artifacts != nil {
		backfiller = backfill.NewBackfiller(backfill.Options{
			Calls:        stores.Calls,
			Provider:     provider,
			Artifacts:    stores.Artifacts,
			JobRuns:      stores.JobRuns,
			Pacer:        shared,
			FetchTimeout: cfg.Backfill.FetchTimeout,
			Logger:       logger,
		})
	}

	aggregator := leaderboard.NewAggregator(leaderboard.Options{
		Calls:        stores.Calls,
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		Logger:       logger,
	})

	if !cfg.Verification.Disabled {
		scheduler, err := verification.NewScheduler(ctx, cfg.Verification.Schedule, verifier, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		logger.Info("verification schedule disabled, use POST /admin/verification/run")
	}

	opts := api.Options{
		Verifier:    verifier,
		Leaderboard: aggregator,
		Calls:       stores.Calls,
		Artifacts:   stores.Artifacts,
		JobRuns:     stores.JobRuns,
		Tokens:      provider,
		Events:      hub,
		BaseContext: ctx,
		AdminToken:  cfg.HTTP.AdminToken,
		Logger:      logger,
	}
	if backfiller != nil {
		opts.Backfiller = backfiller
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(opts).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return ctx.Err()
}
