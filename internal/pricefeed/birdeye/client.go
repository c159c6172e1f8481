// Package birdeye implements pricefeed.Provider on the Birdeye public API.
package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/observability"
	"memecoin-calls/internal/pricefeed"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://public-api.birdeye.so"
	DefaultChain       = "solana"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client is a Birdeye HTTP client with client-side rate limiting and retries.
type Client struct {
	baseURL     string
	apiKey      string
	chain       string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithChain sets the x-chain header.
func WithChain(chain string) ClientOption {
	return func(c *Client) {
		c.chain = chain
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithRateLimit limits outgoing requests to rps with the given burst.
// rps <= 0 disables client-side limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Birdeye client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		chain:       DefaultChain,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ pricefeed.Provider = (*Client)(nil)

// FetchPriceHistory calls /defi/history_price for [from, to].
func (c *Client) FetchPriceHistory(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) (domain.PriceHistory, error) {
	q := url.Values{}
	q.Set("address", tokenID)
	q.Set("address_type", "token")
	q.Set("type", res.String())
	q.Set("time_from", strconv.FormatInt(from.Unix(), 10))
	q.Set("time_to", strconv.FormatInt(to.Unix(), 10))

	var resp envelope[historyData]
	if err := c.get(ctx, "history_price", "/defi/history_price", q, &resp); err != nil {
		return nil, err
	}

	history := domain.PriceHistory(resp.Data.Items)
	if !history.IsSorted() {
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].UnixTime < history[j].UnixTime
		})
	}
	return history, nil
}

// FetchCandles calls /defi/ohlcv for [from, to].
func (c *Client) FetchCandles(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("address", tokenID)
	q.Set("type", res.String())
	q.Set("time_from", strconv.FormatInt(from.Unix(), 10))
	q.Set("time_to", strconv.FormatInt(to.Unix(), 10))

	var resp envelope[ohlcvData]
	if err := c.get(ctx, "ohlcv", "/defi/ohlcv", q, &resp); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		candles = append(candles, domain.Candle{
			UnixTime: it.UnixTime,
			Open:     it.Open,
			High:     it.High,
			Low:      it.Low,
			Close:    it.Close,
			Volume:   it.Volume,
		})
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].UnixTime < candles[j].UnixTime
	})
	return candles, nil
}

// GetTokenData calls /defi/token_overview.
func (c *Client) GetTokenData(ctx context.Context, tokenID string) (*domain.TokenMetadata, error) {
	q := url.Values{}
	q.Set("address", tokenID)

	var resp envelope[*tokenOverview]
	if err := c.get(ctx, "token_overview", "/defi/token_overview", q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, pricefeed.ErrTokenNotFound
	}

	ov := resp.Data
	supply := ov.CirculatingSupply
	if supply == nil {
		supply = ov.Supply
	}
	return &domain.TokenMetadata{
		TokenID:   tokenID,
		Name:      ov.Name,
		Symbol:    ov.Symbol,
		Decimals:  ov.Decimals,
		Price:     ov.Price,
		Supply:    supply,
		MarketCap: ov.MarketCap,
	}, nil
}

// response is a decoded Birdeye envelope.
type response interface {
	ok() (bool, string)
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// get performs a GET and records its latency.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out response) error {
	start := time.Now()
	err := c.do(ctx, path, query, out)
	observability.RecordProviderRequest(endpoint, time.Since(start), err)
	return err
}

// do performs a GET with rate limiting, retries and exponential backoff.
// 429 and 5xx are retried, other non-200 answers are returned immediately.
func (c *Client) do(ctx context.Context, path string, query url.Values, out response) error {
	endpoint := c.baseURL + path + "?" + query.Encode()

	delay := c.retryDelay
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("x-chain", c.chain)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
			lastErr = &statusError{code: resp.StatusCode, body: string(body)}
			c.logger.Warn("rate limited by birdeye",
				zap.String("path", path),
				zap.Int("attempt", attempt+1))
			continue
		}
		rateLimited = false

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &statusError{code: resp.StatusCode, body: string(body)}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			err := &statusError{code: resp.StatusCode, body: string(body)}
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %v", pricefeed.ErrTokenNotFound, err)
			}
			return fmt.Errorf("%w: %v", pricefeed.ErrUpstream, err)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", pricefeed.ErrUpstream, err)
		}
		if ok, msg := out.ok(); !ok {
			return fmt.Errorf("%w: %s", pricefeed.ErrUpstream, msg)
		}
		return nil
	}

	if rateLimited {
		return fmt.Errorf("%w: %v", pricefeed.ErrRateLimitExceeded, lastErr)
	}
	return fmt.Errorf("%w: max retries exceeded: %v", pricefeed.ErrUpstream, lastErr)
}

func (e *envelope[T]) ok() (bool, string) {
	if e.Success {
		return true, ""
	}
	if e.Message == "" {
		return false, "success=false"
	}
	return false, e.Message
}
