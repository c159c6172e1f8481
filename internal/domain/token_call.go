package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCall is returned when a token call violates its creation invariants.
var ErrInvalidCall = errors.New("invalid token call")

// TokenCall is a user's prediction that a token reaches TargetPrice by TargetDate.
// Corresponds to token_calls table in PostgreSQL.
type TokenCall struct {
	ID      string // PRIMARY KEY, UUID
	UserID  string // owning user
	TokenID string // token mint address

	// Immutable at creation
	CallTimestamp   time.Time // when the call was made
	ReferencePrice  float64   // price at call time
	ReferenceSupply *float64  // token supply at call time (nullable)
	TargetPrice     float64   // predicted price
	TargetDate      time.Time // prediction deadline
	Timeframe       string    // duration label, e.g. "24h"

	// Set only by the verification pipeline
	Status                CallStatus
	VerificationTimestamp *time.Time
	PeakPrice             *float64
	FinalPrice            *float64
	TargetHitTimestamp    *time.Time
	TimeToHitRatio        *float64
	PriceHistoryURL       *string // artifact reference (nullable)

	CreatedAt time.Time // record creation timestamp
	UpdatedAt time.Time // last write timestamp
}

// NewTokenCallParams holds the creation inputs of a token call.
type NewTokenCallParams struct {
	UserID          string
	TokenID         string
	CallTimestamp   time.Time
	ReferencePrice  float64
	ReferenceSupply *float64
	TargetPrice     float64
	TargetDate      time.Time
	Timeframe       string
}

// NewTokenCall creates a PENDING call with a fresh id after validating
// the creation invariants.
func NewTokenCall(p NewTokenCallParams) (*TokenCall, error) {
	c := &TokenCall{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		TokenID:         p.TokenID,
		CallTimestamp:   p.CallTimestamp.UTC(),
		ReferencePrice:  p.ReferencePrice,
		ReferenceSupply: p.ReferenceSupply,
		TargetPrice:     p.TargetPrice,
		TargetDate:      p.TargetDate.UTC(),
		Timeframe:       p.Timeframe,
		Status:          CallStatusPending,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the creation invariants of the call.
func (c *TokenCall) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidCall)
	}
	if c.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidCall)
	}
	if err := ValidateTokenID(c.TokenID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	if c.ReferencePrice <= 0 {
		return fmt.Errorf("%w: reference price must be positive, got %v", ErrInvalidCall, c.ReferencePrice)
	}
	if c.TargetPrice <= 0 {
		return fmt.Errorf("%w: target price must be positive, got %v", ErrInvalidCall, c.TargetPrice)
	}
	if !c.TargetDate.After(c.CallTimestamp) {
		return fmt.Errorf("%w: target date %s is not after call timestamp %s",
			ErrInvalidCall, c.TargetDate.Format(time.RFC3339), c.CallTimestamp.Format(time.RFC3339))
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCall, c.Status)
	}
	return nil
}

// Duration returns the nominal prediction window.
func (c *TokenCall) Duration() time.Duration {
	return c.TargetDate.Sub(c.CallTimestamp)
}

// Multiplier returns TargetPrice / ReferencePrice, or false if the
// reference price is zero.
func (c *TokenCall) Multiplier() (float64, bool) {
	if c.ReferencePrice == 0 {
		return 0, false
	}
	return c.TargetPrice / c.ReferencePrice, true
}

// MarketCapAtCall returns ReferencePrice * ReferenceSupply when both are positive.
func (c *TokenCall) MarketCapAtCall() (float64, bool) {
	if c.ReferenceSupply == nil || c.ReferencePrice <= 0 || *c.ReferenceSupply <= 0 {
		return 0, false
	}
	return c.ReferencePrice * *c.ReferenceSupply, true
}

// HasArtifact reports whether a price-history artifact reference is set.
func (c *TokenCall) HasArtifact() bool {
	return c.PriceHistoryURL != nil && *c.PriceHistoryURL != ""
}

// MarkError moves the call to ERROR, keeping other verification fields as they were.
func (c *TokenCall) MarkError(now time.Time) {
	ts := now.UTC()
	c.Status = CallStatusError
	c.VerificationTimestamp = &ts
}

// Clone returns a deep copy of the call.
func (c *TokenCall) Clone() *TokenCall {
	out := *c
	out.ReferenceSupply = clonePtr(c.ReferenceSupply)
	out.VerificationTimestamp = clonePtr(c.VerificationTimestamp)
	out.PeakPrice = clonePtr(c.PeakPrice)
	out.FinalPrice = clonePtr(c.FinalPrice)
	out.TargetHitTimestamp = clonePtr(c.TargetHitTimestamp)
	out.TimeToHitRatio = clonePtr(c.TimeToHitRatio)
	out.PriceHistoryURL = clonePtr(c.PriceHistoryURL)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
