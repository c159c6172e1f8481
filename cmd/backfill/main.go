// Package main runs the price-history artifact backfill once and prints its counts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"memecoin-calls/internal/app"
	"memecoin-calls/internal/backfill"
	"memecoin-calls/internal/config"
	"memecoin-calls/internal/logging"
	"memecoin-calls/internal/pacer"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	itemDelay := flag.Duration("item-delay", 0, "Delay between provider requests (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *itemDelay > 0 {
		cfg.Verification.ItemDelay = *itemDelay
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("backfill failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(res); err != nil {
		logger.Fatal("encode result", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backfill.Result, error) {
	stores, err := app.OpenStores(ctx, cfg.Storage, cfg.HTTP.PublicBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()

	if stores.Artifacts == nil {
		return nil, errors.New("artifact storage is disabled: set storage.clickhouse_dsn")
	}

	provider, closeProvider, err := app.NewProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create price provider: %w", err)
	}
	defer closeProvider()

	b := backfill.NewBackfiller(backfill.Options{
		Calls:        stores.Calls,
		Provider:     provider,
		Artifacts:    stores.Artifacts,
		JobRuns:      stores.JobRuns,
		Pacer:        pacer.New(cfg.Verification.ItemDelay),
		FetchTimeout: cfg.Backfill.FetchTimeout,
		Logger:       logger,
	})

	start := time.Now()
	res, err := b.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("backfill finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}
