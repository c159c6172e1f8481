// Package app wires configuration into stores and providers for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"memecoin-calls/internal/config"
	"memecoin-calls/internal/storage"
	chstore "memecoin-calls/internal/storage/clickhouse"
	"memecoin-calls/internal/storage/memory"
	"memecoin-calls/internal/storage/migrations"
	pgstore "memecoin-calls/internal/storage/postgres"
)

// Stores holds the storage backends selected by configuration.
type Stores struct {
	Calls     storage.CallStore
	Artifacts storage.ArtifactStore // nil when artifact storage is disabled
	JobRuns   storage.JobRunStore

	closers []func()
}

// Close releases every opened connection.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores opens the configured backends. Artifact references are built
// from artifactBaseURL.
func OpenStores(ctx context.Context, cfg config.StorageConfig, artifactBaseURL string, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return &Stores{
			Calls:     memory.NewCallStore(),
			Artifacts: memory.NewArtifactStore(artifactBaseURL),
			JobRuns:   memory.NewJobRunStore(),
		}, nil
	}

	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	s := &Stores{}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pool.Close)

	if cfg.Migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied", zap.Strings("versions", applied))
	}
	s.Calls = pgstore.NewCallStore(pool)
	s.JobRuns = pgstore.NewJobRunStore(pool)

	if cfg.ClickHouseDSN == "" {
		logger.Warn("clickhouse dsn not set, price history artifacts are disabled")
		return s, nil
	}

	var conn *chstore.Conn
	if cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	s.closers = append(s.closers, func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
	})
	s.Artifacts = chstore.NewArtifactStore(conn, artifactBaseURL)

	return s, nil
}
