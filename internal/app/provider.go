package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"memecoin-calls/internal/config"
	"memecoin-calls/internal/pricefeed"
	"memecoin-calls/internal/pricefeed/birdeye"
	"memecoin-calls/internal/pricefeed/cache"
)

// ErrMissingAPIKey is returned when no Birdeye API key is configured.
var ErrMissingAPIKey = errors.New("birdeye api key is required")

// NewProvider builds the Birdeye client, behind the Redis cache when
// redis.addr is set. The returned func closes the cache connection.
func NewProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pricefeed.Provider, func(), error) {
	if cfg.Birdeye.APIKey == "" {
		return nil, nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []birdeye.ClientOption{
		birdeye.WithBaseURL(cfg.Birdeye.BaseURL),
		birdeye.WithChain(cfg.Birdeye.Chain),
		birdeye.WithTimeout(cfg.Birdeye.Timeout),
		birdeye.WithMaxRetries(cfg.Birdeye.MaxRetries),
		birdeye.WithLogger(logger),
	}
	if cfg.Birdeye.RPS > 0 {
		opts = append(opts, birdeye.WithRateLimit(cfg.Birdeye.RPS, cfg.Birdeye.Burst))
	}
	client := birdeye.NewClient(cfg.Birdeye.APIKey, opts...)

	if cfg.Redis.Addr == "" {
		return client, func() {}, nil
	}

	rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("price history cache enabled", zap.String("redis_addr", cfg.Redis.Addr))

	cached := cache.NewProvider(client, rdb, cache.Options{
		TTL:       cfg.Redis.TTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Logger:    logger,
	})
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	return cached, closeFn, nil
}
