package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/storage"
)

const testMint = "So11111111111111111111111111111111111111112"

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCall(id, user string, callAt time.Time, window time.Duration, status domain.CallStatus) *domain.TokenCall {
	return &domain.TokenCall{
		ID:             id,
		UserID:         user,
		TokenID:        testMint,
		CallTimestamp:  callAt,
		ReferencePrice: 0.001,
		TargetPrice:    0.002,
		TargetDate:     callAt.Add(window),
		Timeframe:      "24h",
		Status:         status,
	}
}

func callIDs(calls []*domain.TokenCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.ID
	}
	return out
}

func TestCallStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	ctx := context.Background()

	call := newTestCall("call-001", "alice", baseTime, 24*time.Hour, domain.CallStatusPending)
	call.ReferenceSupply = ptr(1_000_000_000.0)

	require.NoError(t, store.Insert(ctx, call))

	got, err := store.GetByID(ctx, "call-001")
	require.NoError(t, err)

	assert.Equal(t, call.UserID, got.UserID)
	assert.Equal(t, call.TokenID, got.TokenID)
	assert.True(t, call.CallTimestamp.Equal(got.CallTimestamp))
	assert.True(t, call.TargetDate.Equal(got.TargetDate))
	assert.Equal(t, call.ReferencePrice, got.ReferencePrice)
	assert.Equal(t, *call.ReferenceSupply, *got.ReferenceSupply)
	assert.Equal(t, domain.CallStatusPending, got.Status)
	assert.Nil(t, got.VerificationTimestamp)
	assert.Nil(t, got.PriceHistoryURL)
	assert.NotZero(t, got.CreatedAt)
}

func TestCallStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	ctx := context.Background()

	call := newTestCall("call-dup", "alice", baseTime, time.Hour, domain.CallStatusPending)
	require.NoError(t, store.Insert(ctx, call))

	err := store.Insert(ctx, call)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

// Validation runs before any query, so no database is needed.
func TestCallStore_InsertRejectsInvalid(t *testing.T) {
	store := NewCallStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)

	noUser := newTestCall("call-bad", "", baseTime, time.Hour, domain.CallStatusPending)
	err := store.Insert(ctx, noUser)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrInvalidCall)

	backwards := newTestCall("call-bad", "alice", baseTime, -time.Hour, domain.CallStatusPending)
	assert.ErrorIs(t, store.Insert(ctx, backwards), storage.ErrInvalidInput)

	freePrice := newTestCall("call-bad", "alice", baseTime, time.Hour, domain.CallStatusPending)
	freePrice.ReferencePrice = 0
	assert.ErrorIs(t, store.Insert(ctx, freePrice), storage.ErrInvalidInput)
}

func TestCallStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCallStore_SaveVerificationOutcome(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	ctx := context.Background()

	call := newTestCall("call-save", "alice", baseTime, 24*time.Hour, domain.CallStatusPending)
	require.NoError(t, store.Insert(ctx, call))

	verifiedAt := baseTime.Add(25 * time.Hour)
	hitAt := baseTime.Add(12 * time.Hour)
	call.Status = domain.CallStatusVerifiedSuccess
	call.VerificationTimestamp = &verifiedAt
	call.PeakPrice = ptr(0.0025)
	call.FinalPrice = ptr(0.0021)
	call.TargetHitTimestamp = &hitAt
	call.TimeToHitRatio = ptr(0.5)
	call.PriceHistoryURL = ptr("http://localhost/artifacts/price-history/call-save.json")

	// Saving twice leaves the same row.
	require.NoError(t, store.Save(ctx, call))
	require.NoError(t, store.Save(ctx, call))

	got, err := store.GetByID(ctx, "call-save")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusVerifiedSuccess, got.Status)
	assert.True(t, verifiedAt.Equal(*got.VerificationTimestamp))
	assert.True(t, hitAt.Equal(*got.TargetHitTimestamp))
	assert.Equal(t, 0.0025, *got.PeakPrice)
	assert.Equal(t, 0.0021, *got.FinalPrice)
	assert.Equal(t, 0.5, *got.TimeToHitRatio)
	assert.Equal(t, *call.PriceHistoryURL, *got.PriceHistoryURL)
}

func TestCallStore_SaveInsertsMissingRow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	ctx := context.Background()

	call := newTestCall("call-new", "bob", baseTime, time.Hour, domain.CallStatusPending)
	require.NoError(t, store.Save(ctx, call))

	got, err := store.GetByID(ctx, "call-new")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.UserID)
}

func TestCallStore_Queries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallStore(pool)
	ctx := context.Background()

	withURL := newTestCall("v-url", "carol", baseTime, time.Hour, domain.CallStatusVerifiedSuccess)
	withURL.PriceHistoryURL = ptr("http://localhost/artifacts/x.json")

	calls := []*domain.TokenCall{
		newTestCall("p-b", "alice", baseTime, 24*time.Hour, domain.CallStatusPending),
		newTestCall("p-a", "bob", baseTime, 24*time.Hour, domain.CallStatusPending),
		newTestCall("p-early", "bob", baseTime, time.Hour, domain.CallStatusPending),
		newTestCall("p-future", "bob", baseTime, 96*time.Hour, domain.CallStatusPending),
		newTestCall("v-late", "alice", baseTime.Add(2*time.Hour), time.Hour, domain.CallStatusVerifiedFail),
		newTestCall("v-early", "bob", baseTime, time.Hour, domain.CallStatusVerifiedSuccess),
		newTestCall("err", "bob", baseTime, time.Hour, domain.CallStatusError),
		withURL,
	}
	for _, c := range calls {
		require.NoError(t, store.Insert(ctx, c))
	}

	pending, err := store.FindPendingPastTarget(ctx, baseTime.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-early", "p-a", "p-b"}, callIDs(pending))

	missing, err := store.FindVerifiedMissingArtifact(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v-early", "v-late"}, callIDs(missing))

	verified, err := store.ListVerified(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v-late", "v-early", "v-url"}, callIDs(verified))
}

func TestJobRunStore_RecordAndGetLast(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJobRunStore(pool)
	ctx := context.Background()

	_, err := store.GetLast(ctx, storage.JobBackfill)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Record(ctx, &storage.JobRun{
		Job: storage.JobBackfill, StartedAt: baseTime, FinishedAt: baseTime.Add(time.Minute), Total: 2, Succeeded: 2,
	}))
	require.NoError(t, store.Record(ctx, &storage.JobRun{
		Job: storage.JobBackfill, StartedAt: baseTime.Add(time.Hour), FinishedAt: baseTime.Add(time.Hour + time.Minute),
		Total: 3, Succeeded: 1, Failed: 2, Error: ptr("provider unavailable"),
	}))

	last, err := store.GetLast(ctx, storage.JobBackfill)
	require.NoError(t, err)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 2, last.Failed)
	require.NotNil(t, last.Error)
	assert.Equal(t, "provider unavailable", *last.Error)
}
