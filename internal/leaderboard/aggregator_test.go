package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/storage"
	"memecoin-calls/internal/storage/memory"
)

const testMint = "So11111111111111111111111111111111111111112"

var callTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

var seq int

func verifiedCall(user string, status domain.CallStatus, refPrice, targetPrice float64) *domain.TokenCall {
	seq++
	c := &domain.TokenCall{
		ID:             fmt.Sprintf("call-%04d", seq),
		UserID:         user,
		TokenID:        testMint,
		CallTimestamp:  callTime.Add(time.Duration(seq) * time.Minute),
		ReferencePrice: refPrice,
		TargetPrice:    targetPrice,
		TargetDate:     callTime.Add(time.Duration(seq)*time.Minute + 24*time.Hour),
		Timeframe:      "24h",
		Status:         status,
	}
	if status == domain.CallStatusVerifiedSuccess {
		c.TimeToHitRatio = ptr(0.5)
	}
	return c
}

func seed(t *testing.T, calls ...*domain.TokenCall) *memory.CallStore {
	t.Helper()
	store := memory.NewCallStore()
	for _, c := range calls {
		require.NoError(t, store.Insert(context.Background(), c))
	}
	return store
}

func callsFor(user string, success, fail int) []*domain.TokenCall {
	var out []*domain.TokenCall
	for i := 0; i < success; i++ {
		out = append(out, verifiedCall(user, domain.CallStatusVerifiedSuccess, 1, 2))
	}
	for i := 0; i < fail; i++ {
		out = append(out, verifiedCall(user, domain.CallStatusVerifiedFail, 1, 2))
	}
	return out
}

func userIDs(items []domain.LeaderboardEntry) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.UserID
	}
	return out
}

func TestLeaderboard_VolumeBeatsPerfectSmallSample(t *testing.T) {
	// X: 8 of 10, Y: 2 of 2
	var calls []*domain.TokenCall
	calls = append(calls, callsFor("X", 8, 2)...)
	calls = append(calls, callsFor("Y", 2, 0)...)

	agg := NewAggregator(Options{Calls: seed(t, calls...)})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, []string{"X", "Y"}, userIDs(page.Items))

	x, y := page.Items[0], page.Items[1]
	assert.InDelta(t, 0.8*math.Log(11), x.AdjustedScore, 1e-9)
	assert.InDelta(t, 1.0*math.Log(3), y.AdjustedScore, 1e-9)
	assert.Equal(t, 1, x.Rank)
	assert.Equal(t, 2, y.Rank)
	assert.Equal(t, 10, x.TotalCalls)
	assert.Equal(t, 8, x.SuccessfulCalls)
	assert.InDelta(t, 0.8, x.AccuracyRate, 1e-9)
	assert.InDelta(t, 1.0, y.AccuracyRate, 1e-9)
}

func TestLeaderboard_Averages(t *testing.T) {
	win := verifiedCall("U", domain.CallStatusVerifiedSuccess, 2, 10)
	win.TimeToHitRatio = ptr(0.25)
	win.ReferenceSupply = ptr(1000.0)

	winNoRatio := verifiedCall("U", domain.CallStatusVerifiedSuccess, 1, 3)
	winNoRatio.TimeToHitRatio = nil

	loss := verifiedCall("U", domain.CallStatusVerifiedFail, 4, 100)
	loss.ReferenceSupply = ptr(500.0)

	zeroSupply := verifiedCall("U", domain.CallStatusVerifiedFail, 1, 2)
	zeroSupply.ReferenceSupply = ptr(0.0)

	agg := NewAggregator(Options{Calls: seed(t, win, winNoRatio, loss, zeroSupply)})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	e := page.Items[0]
	assert.Equal(t, 4, e.TotalCalls)
	assert.Equal(t, 2, e.SuccessfulCalls)
	assert.InDelta(t, 0.5, e.AccuracyRate, 1e-9)

	// Ratio over successes that carry one.
	require.NotNil(t, e.AverageTimeToHitRatio)
	assert.InDelta(t, 0.25, *e.AverageTimeToHitRatio, 1e-9)

	// Multiplier over successes only: (5 + 3) / 2.
	require.NotNil(t, e.AverageMultiplier)
	assert.InDelta(t, 4.0, *e.AverageMultiplier, 1e-9)

	// Market cap over all verified calls with price and supply > 0: (2000 + 2000) / 2.
	require.NotNil(t, e.AverageMarketCapAtCallTime)
	assert.InDelta(t, 2000.0, *e.AverageMarketCapAtCallTime, 1e-9)
}

func TestLeaderboard_NilAveragesWithoutData(t *testing.T) {
	agg := NewAggregator(Options{Calls: seed(t, callsFor("L", 0, 3)...)})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	e := page.Items[0]
	assert.Zero(t, e.AccuracyRate)
	assert.Zero(t, e.AdjustedScore)
	assert.Nil(t, e.AverageTimeToHitRatio)
	assert.Nil(t, e.AverageMultiplier)
	assert.Nil(t, e.AverageMarketCapAtCallTime)
}

func TestLeaderboard_IgnoresPendingAndError(t *testing.T) {
	pending := verifiedCall("P", domain.CallStatusPending, 1, 2)
	errored := verifiedCall("E", domain.CallStatusError, 1, 2)
	calls := append(callsFor("V", 1, 0), pending, errored)

	agg := NewAggregator(Options{Calls: seed(t, calls...)})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"V"}, userIDs(page.Items))
}

func TestLeaderboard_TieBreakers(t *testing.T) {
	// Same accuracy and total: higher average multiplier first.
	low := verifiedCall("a-low", domain.CallStatusVerifiedSuccess, 1, 2)
	high := verifiedCall("b-high", domain.CallStatusVerifiedSuccess, 1, 5)

	// Zero accuracy: nil multiplier counts as 0, more calls first.
	few := callsFor("c-few", 0, 1)
	many := callsFor("d-many", 0, 3)

	calls := append([]*domain.TokenCall{low, high}, append(few, many...)...)
	agg := NewAggregator(Options{Calls: seed(t, calls...)})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)

	assert.Equal(t, []string{"b-high", "a-low", "d-many", "c-few"}, userIDs(page.Items))
}

func TestLeaderboard_FullTiesKeepUserOrder(t *testing.T) {
	var calls []*domain.TokenCall
	for _, u := range []string{"u3", "u1", "u2"} {
		calls = append(calls, callsFor(u, 1, 1)...)
	}
	agg := NewAggregator(Options{Calls: seed(t, calls...)})

	for i := 0; i < 5; i++ {
		page, err := agg.Leaderboard(context.Background(), Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u3"}, userIDs(page.Items))
	}
}

func TestLeaderboard_PagesConcatenate(t *testing.T) {
	var calls []*domain.TokenCall
	for i := 0; i < 12; i++ {
		// Distinct totals give distinct scores.
		calls = append(calls, callsFor(fmt.Sprintf("user-%02d", i), i+1, 1)...)
	}
	agg := NewAggregator(Options{Calls: seed(t, calls...)})
	ctx := context.Background()

	all, err := agg.Leaderboard(ctx, Query{Page: 1, Limit: 100})
	require.NoError(t, err)
	require.Len(t, all.Items, 12)
	assert.Equal(t, 12, all.Total)

	var joined []domain.LeaderboardEntry
	for p := 1; p <= 3; p++ {
		page, err := agg.Leaderboard(ctx, Query{Page: p, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 12, page.Total)
		joined = append(joined, page.Items...)
	}
	assert.Equal(t, all.Items, joined)

	for i, e := range joined {
		assert.Equal(t, i+1, e.Rank)
	}

	beyond, err := agg.Leaderboard(ctx, Query{Page: 4, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
}

func TestLeaderboard_HugePageIsEmpty(t *testing.T) {
	agg := NewAggregator(Options{Calls: seed(t, callsFor("X", 1, 0)...)})

	for _, q := range []Query{
		{Page: math.MaxInt64, Limit: MaxLimit},
		{Page: math.MaxInt64 / 10, Limit: MaxLimit},
		{Page: math.MaxInt64/MaxLimit + 2, Limit: MaxLimit},
	} {
		page, err := agg.Leaderboard(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.NotNil(t, page.Items)
		assert.Equal(t, 1, page.Total)
	}
}

func TestLeaderboard_EmptyStore(t *testing.T) {
	agg := NewAggregator(Options{Calls: memory.NewCallStore()})
	page, err := agg.Leaderboard(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Query
		want Query
	}{
		{"defaults", Query{}, Query{Page: 1, Limit: DefaultLimit, SortBy: SortByAccuracyRate}},
		{"negative page", Query{Page: -3, Limit: 10}, Query{Page: 1, Limit: 10, SortBy: SortByAccuracyRate}},
		{"limit below min", Query{Page: 2, Limit: 1}, Query{Page: 2, Limit: MinLimit, SortBy: SortByAccuracyRate}},
		{"negative limit", Query{Limit: -1}, Query{Page: 1, Limit: MinLimit, SortBy: SortByAccuracyRate}},
		{"limit above max", Query{Limit: 1000}, Query{Page: 1, Limit: MaxLimit, SortBy: SortByAccuracyRate}},
		{"sortBy kept", Query{SortBy: SortByTotalCalls}, Query{Page: 1, Limit: DefaultLimit, SortBy: SortByTotalCalls}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ConfiguredDefault(t *testing.T) {
	got, err := Normalize(Query{}, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Limit)

	got, err = Normalize(Query{}, 500)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, got.Limit)
}

func TestLeaderboard_InvalidSortBy(t *testing.T) {
	agg := NewAggregator(Options{Calls: memory.NewCallStore()})
	_, err := agg.Leaderboard(context.Background(), Query{SortBy: "pnl"})
	assert.ErrorIs(t, err, ErrInvalidSortBy)
}

func TestLeaderboard_SortByDoesNotChangeOrder(t *testing.T) {
	var calls []*domain.TokenCall
	calls = append(calls, callsFor("X", 8, 2)...)
	calls = append(calls, callsFor("Y", 2, 0)...)
	agg := NewAggregator(Options{Calls: seed(t, calls...)})

	for _, s := range []string{SortByAccuracyRate, SortBySuccessfulCalls, SortByTotalCalls} {
		page, err := agg.Leaderboard(context.Background(), Query{SortBy: s})
		require.NoError(t, err)
		assert.Equal(t, []string{"X", "Y"}, userIDs(page.Items), s)
		assert.Equal(t, s, page.SortBy)
	}
}

type failingStore struct{ storage.CallStore }

func (failingStore) ListVerified(context.Context) ([]*domain.TokenCall, error) {
	return nil, errors.New("connection reset")
}

func TestLeaderboard_StoreError(t *testing.T) {
	agg := NewAggregator(Options{Calls: failingStore{}})
	_, err := agg.Leaderboard(context.Background(), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAdjustedScore(t *testing.T) {
	assert.Zero(t, AdjustedScore(1, 0))
	assert.InDelta(t, math.Log(2), AdjustedScore(1, 1), 1e-12)
	assert.InDelta(t, 0.5*math.Log(5), AdjustedScore(0.5, 4), 1e-12)
}
