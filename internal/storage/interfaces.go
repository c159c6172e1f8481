package storage

import (
	"context"
	"time"

	"memecoin-calls/internal/domain"
)

// CallStore provides access to token_calls storage.
type CallStore interface {
	// Insert adds a new call. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, c *domain.TokenCall) error

	// Save upserts a call by id. Saving the same call twice is a no-op.
	Save(ctx context.Context, c *domain.TokenCall) error

	// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TokenCall, error)

	// FindPendingPastTarget retrieves PENDING calls with target_date <= now,
	// ordered by target_date ASC, id ASC.
	FindPendingPastTarget(ctx context.Context, now time.Time) ([]*domain.TokenCall, error)

	// FindVerifiedMissingArtifact retrieves VERIFIED_SUCCESS / VERIFIED_FAIL calls
	// without a price history reference, ordered by call_timestamp ASC, id ASC.
	FindVerifiedMissingArtifact(ctx context.Context) ([]*domain.TokenCall, error)

	// ListVerified retrieves all VERIFIED_SUCCESS / VERIFIED_FAIL calls,
	// ordered by user_id ASC, call_timestamp ASC, id ASC.
	ListVerified(ctx context.Context) ([]*domain.TokenCall, error)
}

// ArtifactStore persists serialized price-history artifacts.
type ArtifactStore interface {
	// Store writes data under key, replacing any previous content,
	// and returns the public reference of the artifact.
	Store(ctx context.Context, key string, data []byte) (string, error)

	// Load returns the data stored under key. Returns ErrNotFound if not exists.
	Load(ctx context.Context, key string) ([]byte, error)
}

// JobRunStore records batch job summaries for status reporting.
type JobRunStore interface {
	// Record appends a job run summary.
	Record(ctx context.Context, run *JobRun) error

	// GetLast returns the most recent run of a job. Returns ErrNotFound if none.
	GetLast(ctx context.Context, job string) (*JobRun, error)
}
