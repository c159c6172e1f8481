package postgres

import (
	"context"
	"fmt"

	"memecoin-calls/internal/storage"
)

// JobRunStore implements storage.JobRunStore using PostgreSQL.
type JobRunStore struct {
	pool *Pool
}

// NewJobRunStore creates a new JobRunStore.
func NewJobRunStore(pool *Pool) *JobRunStore {
	return &JobRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobRunStore = (*JobRunStore)(nil)

// Record appends a job run summary.
func (s *JobRunStore) Record(ctx context.Context, run *storage.JobRun) error {
	if run == nil || run.Job == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO job_runs (job, started_at, finished_at, total, succeeded, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		run.Job,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	return nil
}

// GetLast returns the most recent run of job. Returns ErrNotFound if none.
func (s *JobRunStore) GetLast(ctx context.Context, job string) (*storage.JobRun, error) {
	query := `
		SELECT job, started_at, finished_at, total, succeeded, failed, error
		FROM job_runs
		WHERE job = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	var run storage.JobRun
	err := s.pool.QueryRow(ctx, query, job).Scan(
		&run.Job,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.Error,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get last job run: %w", err)
	}

	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
