// Package stub provides a scripted pricefeed.Provider for tests.
package stub

import (
	"context"
	"sync"
	"time"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/pricefeed"
)

// Request records one FetchPriceHistory / FetchCandles call.
type Request struct {
	TokenID    string
	From       time.Time
	To         time.Time
	Resolution domain.Resolution
}

// Provider implements pricefeed.Provider from in-memory fixtures.
type Provider struct {
	mu sync.Mutex

	Histories map[string]domain.PriceHistory   // by token id
	Candles   map[string][]domain.Candle       // by token id
	Tokens    map[string]*domain.TokenMetadata // by token id
	Errors    map[string]error                 // by token id, returned by every method
	Panics    map[string]bool                  // by token id, FetchPriceHistory panics
	Delay     time.Duration                    // per FetchPriceHistory call

	// Started, when set, receives a value as each FetchPriceHistory call begins.
	Started chan struct{}

	requests []Request
}

// NewProvider creates an empty stub provider.
func NewProvider() *Provider {
	return &Provider{
		Histories: make(map[string]domain.PriceHistory),
		Candles:   make(map[string][]domain.Candle),
		Tokens:    make(map[string]*domain.TokenMetadata),
		Errors:    make(map[string]error),
		Panics:    make(map[string]bool),
	}
}

// Compile-time interface check.
var _ pricefeed.Provider = (*Provider)(nil)

// FetchPriceHistory returns the fixture for tokenID filtered to [from, to].
func (p *Provider) FetchPriceHistory(ctx context.Context, tokenID string, from, to time.Time, res domain.Resolution) (domain.PriceHistory, error) {
	p.mu.Lock()
	p.requests = append(p.requests, Request{TokenID: tokenID, From: from, To: to, Resolution: res})
	err := p.Errors[tokenID]
	panics := p.Panics[tokenID]
	history := p.Histories[tokenID]
	started := p.Started
	delay := p.Delay
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if panics {
		panic("stub provider panic for " + tokenID)
	}
	if err != nil {
		return nil, err
	}

	var out domain.PriceHistory
	for _, s := range history {
		if s.UnixTime >= from.Unix() && s.UnixTime <= to.Unix() {
			out = append(out, s)
		}
	}
	return out, nil
}

// FetchCandles returns the candle fixture for tokenID filtered to [from, to].
func (p *Provider) FetchCandles(_ context.Context, tokenID string, from, to time.Time, res domain.Resolution) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, Request{TokenID: tokenID, From: from, To: to, Resolution: res})
	if err := p.Errors[tokenID]; err != nil {
		return nil, err
	}

	var out []domain.Candle
	for _, c := range p.Candles[tokenID] {
		if c.UnixTime >= from.Unix() && c.UnixTime <= to.Unix() {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetTokenData returns the token fixture or ErrTokenNotFound.
func (p *Provider) GetTokenData(_ context.Context, tokenID string) (*domain.TokenMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.Errors[tokenID]; err != nil {
		return nil, err
	}
	md, ok := p.Tokens[tokenID]
	if !ok {
		return nil, pricefeed.ErrTokenNotFound
	}
	cp := *md
	return &cp, nil
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}
