// Package cache provides a Redis read-through cache in front of a price provider.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/idhash"
	"memecoin-calls/internal/observability"
	"memecoin-calls/internal/pricefeed"
)

// Defaults.
const (
	DefaultTTL       = 24 * time.Hour
	DefaultKeyPrefix = "pricefeed:"
)

// Options configures Provider.
type Options struct {
	TTL       time.Duration // entry lifetime (default 24h)
	KeyPrefix string        // redis key prefix (default "pricefeed:")
	Logger    *zap.Logger
	Now       func() time.Time
}

// Provider caches history and candle responses of an upstream provider in Redis.
// Only windows that ended before now are cached; open windows can still change.
// Cache failures are logged and fall through to the upstream.
type Provider struct {
	next   pricefeed.Provider
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewProvider wraps next with a Redis cache.
func NewProvider(next pricefeed.Provider, rdb redis.UniversalClient, opts Options) *Provider {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{
		next:   next,
		rdb:    rdb,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// Compile-time interface check.
var _ pricefeed.Provider = (*Provider)(nil)

// FetchPriceHistory returns the cached history for a closed window or asks upstream.
func (p *Provider) FetchPriceHistory(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) (domain.PriceHistory, error) {
	if !p.cacheable(to) {
		return p.next.FetchPriceHistory(ctx, tokenID, from, to, res)
	}

	key := p.prefix + idhash.ComputeHistoryKey(tokenID, from.Unix(), to.Unix(), res)

	var cached domain.PriceHistory
	if p.get(ctx, key, &cached) {
		return cached, nil
	}

	history, err := p.next.FetchPriceHistory(ctx, tokenID, from, to, res)
	if err != nil {
		return nil, err
	}
	// Empty answers are not cached: the upstream may still be backfilling.
	if len(history) > 0 {
		p.set(ctx, key, history)
	}
	return history, nil
}

// FetchCandles returns cached candles for a closed window or asks upstream.
func (p *Provider) FetchCandles(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) ([]domain.Candle, error) {
	if !p.cacheable(to) {
		return p.next.FetchCandles(ctx, tokenID, from, to, res)
	}

	key := p.prefix + idhash.ComputeCandlesKey(tokenID, from.Unix(), to.Unix(), res)

	var cached []domain.Candle
	if p.get(ctx, key, &cached) {
		return cached, nil
	}

	candles, err := p.next.FetchCandles(ctx, tokenID, from, to, res)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		p.set(ctx, key, candles)
	}
	return candles, nil
}

// GetTokenData is never cached.
func (p *Provider) GetTokenData(ctx context.Context, tokenID string) (*domain.TokenMetadata, error) {
	return p.next.GetTokenData(ctx, tokenID)
}

func (p *Provider) cacheable(to time.Time) bool {
	return to.Before(p.now())
}

// get loads key into out. Returns false on miss or any cache failure.
func (p *Provider) get(ctx context.Context, key string, out any) bool {
	data, err := p.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
		}
		observability.RecordCacheLookup(false)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		p.logger.Warn("price cache entry corrupt", zap.String("key", key), zap.Error(err))
		observability.RecordCacheLookup(false)
		return false
	}
	observability.RecordCacheLookup(true)
	return true
}

func (p *Provider) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("price cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		p.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		// Connection pool
		PoolSize:     10,
		MinIdleConns: 2,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
