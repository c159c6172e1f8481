package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/storage"
)

// CallStore implements storage.CallStore using PostgreSQL.
type CallStore struct {
	pool *Pool
}

// NewCallStore creates a new CallStore.
func NewCallStore(pool *Pool) *CallStore {
	return &CallStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallStore = (*CallStore)(nil)

const callColumns = `
	id, user_id, token_id, call_timestamp, reference_price, reference_supply,
	target_price, target_date, timeframe, status, verification_timestamp,
	peak_price, final_price, target_hit_timestamp, time_to_hit_ratio,
	price_history_url, created_at, updated_at`

// Insert adds a new call. Returns ErrInvalidInput if the call fails
// validation and ErrDuplicateKey if id exists.
func (s *CallStore) Insert(ctx context.Context, c *domain.TokenCall) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO token_calls (
			id, user_id, token_id, call_timestamp, reference_price, reference_supply,
			target_price, target_date, timeframe, status, verification_timestamp,
			peak_price, final_price, target_hit_timestamp, time_to_hit_ratio, price_history_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query, callArgs(c)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// Save upserts a call by id. Creation fields of an existing row are kept;
// verification fields are overwritten.
func (s *CallStore) Save(ctx context.Context, c *domain.TokenCall) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_calls (
			id, user_id, token_id, call_timestamp, reference_price, reference_supply,
			target_price, target_date, timeframe, status, verification_timestamp,
			peak_price, final_price, target_hit_timestamp, time_to_hit_ratio, price_history_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			verification_timestamp = EXCLUDED.verification_timestamp,
			peak_price = EXCLUDED.peak_price,
			final_price = EXCLUDED.final_price,
			target_hit_timestamp = EXCLUDED.target_hit_timestamp,
			time_to_hit_ratio = EXCLUDED.time_to_hit_ratio,
			price_history_url = EXCLUDED.price_history_url,
			updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, callArgs(c)...); err != nil {
		return fmt.Errorf("save call %s: %w", c.ID, err)
	}
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(ctx context.Context, id string) (*domain.TokenCall, error) {
	query := `SELECT` + callColumns + `
		FROM token_calls
		WHERE id = $1
	`

	c, err := scanCall(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get call by id: %w", err)
	}
	return c, nil
}

// FindPendingPastTarget retrieves PENDING calls with target_date <= now.
func (s *CallStore) FindPendingPastTarget(ctx context.Context, now time.Time) ([]*domain.TokenCall, error) {
	query := `SELECT` + callColumns + `
		FROM token_calls
		WHERE status = $1 AND target_date <= $2
		ORDER BY target_date ASC, id ASC
	`

	return s.query(ctx, "find pending calls", query, string(domain.CallStatusPending), now.UTC())
}

// FindVerifiedMissingArtifact retrieves verified calls without a price history reference.
func (s *CallStore) FindVerifiedMissingArtifact(ctx context.Context) ([]*domain.TokenCall, error) {
	query := `SELECT` + callColumns + `
		FROM token_calls
		WHERE status IN ($1, $2) AND (price_history_url IS NULL OR price_history_url = '')
		ORDER BY call_timestamp ASC, id ASC
	`

	return s.query(ctx, "find calls missing artifact", query,
		string(domain.CallStatusVerifiedSuccess), string(domain.CallStatusVerifiedFail))
}

// ListVerified retrieves all VERIFIED_SUCCESS / VERIFIED_FAIL calls.
func (s *CallStore) ListVerified(ctx context.Context) ([]*domain.TokenCall, error) {
	query := `SELECT` + callColumns + `
		FROM token_calls
		WHERE status IN ($1, $2)
		ORDER BY user_id ASC, call_timestamp ASC, id ASC
	`

	return s.query(ctx, "list verified calls", query,
		string(domain.CallStatusVerifiedSuccess), string(domain.CallStatusVerifiedFail))
}

func (s *CallStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.TokenCall, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

func callArgs(c *domain.TokenCall) []any {
	return []any{
		c.ID,
		c.UserID,
		c.TokenID,
		c.CallTimestamp.UTC(),
		c.ReferencePrice,
		c.ReferenceSupply,
		c.TargetPrice,
		c.TargetDate.UTC(),
		c.Timeframe,
		string(c.Status),
		c.VerificationTimestamp,
		c.PeakPrice,
		c.FinalPrice,
		c.TargetHitTimestamp,
		c.TimeToHitRatio,
		c.PriceHistoryURL,
	}
}

// scanCall scans a single row into a TokenCall.
func scanCall(row pgx.Row) (*domain.TokenCall, error) {
	var c domain.TokenCall
	var status string

	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.TokenID,
		&c.CallTimestamp,
		&c.ReferencePrice,
		&c.ReferenceSupply,
		&c.TargetPrice,
		&c.TargetDate,
		&c.Timeframe,
		&status,
		&c.VerificationTimestamp,
		&c.PeakPrice,
		&c.FinalPrice,
		&c.TargetHitTimestamp,
		&c.TimeToHitRatio,
		&c.PriceHistoryURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.CallStatus(status)
	normalizeTimes(&c)
	return &c, nil
}

// scanCalls scans multiple rows into a slice of TokenCall.
func scanCalls(rows pgx.Rows) ([]*domain.TokenCall, error) {
	var calls []*domain.TokenCall

	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}

	return calls, nil
}

// normalizeTimes converts scanned timestamps to UTC.
func normalizeTimes(c *domain.TokenCall) {
	c.CallTimestamp = c.CallTimestamp.UTC()
	c.TargetDate = c.TargetDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.VerificationTimestamp != nil {
		ts := c.VerificationTimestamp.UTC()
		c.VerificationTimestamp = &ts
	}
	if c.TargetHitTimestamp != nil {
		ts := c.TargetHitTimestamp.UTC()
		c.TargetHitTimestamp = &ts
	}
}
