// Package pricefeed defines the historical price source used to verify calls.
package pricefeed

import (
	"context"
	"errors"
	"time"

	"memecoin-calls/internal/domain"
)

// Provider errors.
var (
	// ErrRateLimitExceeded is returned when the upstream keeps answering 429.
	ErrRateLimitExceeded = errors.New("price provider rate limit exceeded")

	// ErrUpstream is returned for non-retryable upstream failures.
	ErrUpstream = errors.New("price provider error")

	// ErrTokenNotFound is returned when the upstream has no data for a token.
	ErrTokenNotFound = errors.New("token not found")
)

// HistoryProvider returns price samples for a token.
type HistoryProvider interface {
	// FetchPriceHistory returns samples in [from, to] at resolution res,
	// ordered by time ascending. An empty result is not an error.
	FetchPriceHistory(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) (domain.PriceHistory, error)
}

// Provider is the full price source: history, candles and token overview.
type Provider interface {
	HistoryProvider

	// FetchCandles returns OHLCV bars in [from, to] at resolution res.
	FetchCandles(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) ([]domain.Candle, error)

	// GetTokenData returns the current overview of a token.
	GetTokenData(ctx context.Context, tokenID string) (*domain.TokenMetadata, error)
}
