package birdeye

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/pricefeed"
)

const testMint = "So11111111111111111111111111111111111111112"

func newTestClient(url string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithBaseURL(url),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
	}, opts...)
	return NewClient("test-key", opts...)
}

func TestClient_FetchPriceHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/defi/history_price", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))

		q := r.URL.Query()
		assert.Equal(t, testMint, q.Get("address"))
		assert.Equal(t, "token", q.Get("address_type"))
		assert.Equal(t, "15m", q.Get("type"))
		assert.Equal(t, "1704067200", q.Get("time_from"))
		assert.Equal(t, "1704153600", q.Get("time_to"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[
			{"unixTime":1704070800,"value":1.5},
			{"unixTime":1704067200,"value":1.0}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	from := time.Unix(1704067200, 0)
	to := from.Add(24 * time.Hour)

	history, err := client.FetchPriceHistory(context.Background(), testMint, from, to, domain.Resolution15m)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history.IsSorted())
	assert.Equal(t, 1.0, history[0].Value)
	assert.Equal(t, 1.5, history[1].Value)
}

func TestClient_FetchPriceHistoryEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[]}}`))
	}))
	defer server.Close()

	history, err := newTestClient(server.URL).FetchPriceHistory(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[{"unixTime":1,"value":2}]}}`))
	}))
	defer server.Close()

	history, err := newTestClient(server.URL).FetchPriceHistory(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(2)).FetchPriceHistory(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	assert.ErrorIs(t, err, pricefeed.ErrRateLimitExceeded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"Unauthorized"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPriceHistory(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	assert.ErrorIs(t, err, pricefeed.ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_UnsuccessfulEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"invalid address"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPriceHistory(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	assert.ErrorIs(t, err, pricefeed.ErrUpstream)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).FetchPriceHistory(ctx, testMint, time.Unix(0, 0), time.Unix(60, 0), domain.Resolution1m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_FetchCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/defi/ohlcv", r.URL.Path)
		assert.Equal(t, "1H", r.URL.Query().Get("type"))

		resp := map[string]any{
			"success": true,
			"data": map[string]any{
				"items": []map[string]any{
					{"unixTime": 7200, "o": 2.0, "h": 3.0, "l": 1.5, "c": 2.5, "v": 100.0},
					{"unixTime": 3600, "o": 1.0, "h": 2.0, "l": 0.5, "c": 2.0, "v": 50.0},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	candles, err := newTestClient(server.URL).FetchCandles(
		context.Background(), testMint, time.Unix(0, 0), time.Unix(7200, 0), domain.Resolution1H)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(3600), candles[0].UnixTime)
	assert.Equal(t, 3.0, candles[1].High)
}

func TestClient_GetTokenData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/defi/token_overview", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{
			"address":"` + testMint + `","name":"Wrapped SOL","symbol":"SOL","decimals":9,
			"price":150.5,"supply":1000,"circulatingSupply":900,"marketCap":135450
		}}`))
	}))
	defer server.Close()

	md, err := newTestClient(server.URL).GetTokenData(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, testMint, md.TokenID)
	require.NotNil(t, md.Symbol)
	assert.Equal(t, "SOL", *md.Symbol)
	assert.Equal(t, 9, md.Decimals)
	assert.Equal(t, 150.5, md.Price)
	require.NotNil(t, md.Supply)
	assert.Equal(t, 900.0, *md.Supply)
}

func TestClient_GetTokenDataNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetTokenData(context.Background(), testMint)
	assert.ErrorIs(t, err, pricefeed.ErrTokenNotFound)
}
