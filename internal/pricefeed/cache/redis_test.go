package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/pricefeed/stub"
)

const testMint = "So11111111111111111111111111111111111111112"

var (
	windowFrom = time.Unix(1704067200, 0).UTC()
	windowTo   = windowFrom.Add(time.Hour)
)

func fixtureProvider() *stub.Provider {
	p := stub.NewProvider()
	p.Histories[testMint] = domain.PriceHistory{
		{UnixTime: windowFrom.Unix(), Value: 1},
		{UnixTime: windowFrom.Unix() + 60, Value: 2},
	}
	p.Candles[testMint] = []domain.Candle{
		{UnixTime: windowFrom.Unix(), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
	}
	return p
}

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestProvider_OpenWindowBypassesCache(t *testing.T) {
	upstream := fixtureProvider()
	p := NewProvider(upstream, unreachableClient(), Options{
		Now: func() time.Time { return windowFrom.Add(30 * time.Minute) },
	})

	history, err := p.FetchPriceHistory(context.Background(), testMint, windowFrom, windowTo, domain.Resolution1m)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, upstream.Requests(), 1)
}

func TestProvider_CacheFailureFallsThrough(t *testing.T) {
	upstream := fixtureProvider()
	p := NewProvider(upstream, unreachableClient(), Options{
		Now: func() time.Time { return windowTo.Add(time.Hour) },
	})

	history, err := p.FetchPriceHistory(context.Background(), testMint, windowFrom, windowTo, domain.Resolution1m)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	candles, err := p.FetchCandles(context.Background(), testMint, windowFrom, windowTo, domain.Resolution1m)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestProvider_UpstreamErrorPropagates(t *testing.T) {
	upstream := fixtureProvider()
	boom := errors.New("upstream down")
	upstream.Errors[testMint] = boom

	p := NewProvider(upstream, unreachableClient(), Options{
		Now: func() time.Time { return windowTo.Add(time.Hour) },
	})

	_, err := p.FetchPriceHistory(context.Background(), testMint, windowFrom, windowTo, domain.Resolution1m)
	assert.ErrorIs(t, err, boom)
}

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb, err := NewClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)

	return rdb, func() {
		rdb.Close()
		_ = container.Terminate(ctx)
	}
}

func TestProvider_ClosedWindowIsCached(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	upstream := fixtureProvider()
	p := NewProvider(upstream, rdb, Options{
		TTL: time.Minute,
		Now: func() time.Time { return windowTo.Add(time.Hour) },
	})
	ctx := context.Background()

	first, err := p.FetchPriceHistory(ctx, testMint, windowFrom, windowTo, domain.Resolution1m)
	require.NoError(t, err)
	second, err := p.FetchPriceHistory(ctx, testMint, windowFrom, windowTo, domain.Resolution1m)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, upstream.Requests(), 1)

	// A different resolution is a different entry.
	_, err = p.FetchPriceHistory(ctx, testMint, windowFrom, windowTo, domain.Resolution5m)
	require.NoError(t, err)
	assert.Len(t, upstream.Requests(), 2)
}

func TestProvider_EmptyHistoryNotCached(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	upstream := stub.NewProvider()
	p := NewProvider(upstream, rdb, Options{
		Now: func() time.Time { return windowTo.Add(time.Hour) },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		history, err := p.FetchPriceHistory(ctx, testMint, windowFrom, windowTo, domain.Resolution1m)
		require.NoError(t, err)
		assert.Empty(t, history)
	}
	assert.Len(t, upstream.Requests(), 2)
}
