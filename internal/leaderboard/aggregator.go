// Package leaderboard ranks users by the outcome of their verified calls.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/observability"
	"memecoin-calls/internal/storage"
)

// Page size bounds.
const (
	DefaultLimit = 20
	MinLimit     = 5
	MaxLimit     = 100
)

// SortBy values accepted by Query. Ordering is always by adjusted score;
// the field is validated and echoed but does not change the ranking.
const (
	SortByAccuracyRate    = "accuracyRate"
	SortBySuccessfulCalls = "successfulCalls"
	SortByTotalCalls      = "totalCalls"
)

// ErrInvalidSortBy is returned for an unknown SortBy value.
var ErrInvalidSortBy = errors.New("invalid sortBy")

// Query selects a leaderboard page.
type Query struct {
	Page   int    // 1-based, values < 1 become 1
	Limit  int    // clamped to [MinLimit, MaxLimit], 0 means DefaultLimit
	SortBy string // optional
}

// Page is one slice of the ranked leaderboard.
type Page struct {
	Items  []domain.LeaderboardEntry `json:"items"`
	Total  int                       `json:"total"` // ranked users
	Page   int                       `json:"page"`
	Limit  int                       `json:"limit"`
	SortBy string                    `json:"sortBy"`
}

// Options configures an Aggregator.
type Options struct {
	Calls        storage.CallStore
	DefaultLimit int // page size when a query sets none, DefaultLimit if 0
	Logger       *zap.Logger
}

// Aggregator computes the leaderboard from stored calls on every request.
type Aggregator struct {
	calls        storage.CallStore
	defaultLimit int
	logger       *zap.Logger
}

// NewAggregator creates a new leaderboard aggregator.
func NewAggregator(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		calls:        opts.Calls,
		defaultLimit: opts.DefaultLimit,
		logger:       logger.Named("leaderboard"),
	}
}

// Normalize applies defaults and clamps to q. A zero limit takes
// defaultLimit, or DefaultLimit when that is not positive.
func Normalize(q Query, defaultLimit int) (Query, error) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}

	switch q.SortBy {
	case "":
		q.SortBy = SortByAccuracyRate
	case SortByAccuracyRate, SortBySuccessfulCalls, SortByTotalCalls:
	default:
		return q, fmt.Errorf("%w: %q", ErrInvalidSortBy, q.SortBy)
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	switch {
	case q.Limit < MinLimit:
		q.Limit = MinLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q, nil
}

// Leaderboard returns the requested page of the ranking.
func (a *Aggregator) Leaderboard(ctx context.Context, q Query) (*Page, error) {
	q, err := Normalize(q, a.defaultLimit)
	if err != nil {
		return nil, err
	}

	calls, err := a.calls.ListVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("list verified calls: %w", err)
	}

	entries := computeEntries(calls)
	observability.RecordLeaderboardRequest()

	page := &Page{
		Items:  []domain.LeaderboardEntry{},
		Total:  len(entries),
		Page:   q.Page,
		Limit:  q.Limit,
		SortBy: q.SortBy,
	}

	// Compare page counts first: (Page-1)*Limit overflows for huge pages.
	pages := (len(entries) + q.Limit - 1) / q.Limit
	if q.Page-1 >= pages {
		return page, nil
	}
	offset := (q.Page - 1) * q.Limit
	end := offset + q.Limit
	if end > len(entries) {
		end = len(entries)
	}

	for i, e := range entries[offset:end] {
		item := *e
		item.Rank = offset + i + 1
		page.Items = append(page.Items, item)
	}

	a.logger.Debug("leaderboard computed",
		zap.Int("users", len(entries)),
		zap.Int("page", q.Page),
		zap.Int("limit", q.Limit))

	return page, nil
}
