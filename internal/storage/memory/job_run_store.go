package memory

import (
	"context"
	"sync"

	"memecoin-calls/internal/storage"
)

// JobRunStore is an in-memory implementation of storage.JobRunStore.
type JobRunStore struct {
	mu   sync.RWMutex
	last map[string]*storage.JobRun // keyed by job name
}

// NewJobRunStore creates a new in-memory job run store.
func NewJobRunStore() *JobRunStore {
	return &JobRunStore{
		last: make(map[string]*storage.JobRun),
	}
}

// Record stores run as the latest run of its job.
func (s *JobRunStore) Record(_ context.Context, run *storage.JobRun) error {
	if run == nil || run.Job == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.last[run.Job]
	if exists && prev.StartedAt.After(run.StartedAt) {
		return nil
	}
	s.last[run.Job] = copyJobRun(run)
	return nil
}

// GetLast returns the most recent run of job. Returns ErrNotFound if none.
func (s *JobRunStore) GetLast(_ context.Context, job string) (*storage.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.last[job]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyJobRun(run), nil
}

func copyJobRun(run *storage.JobRun) *storage.JobRun {
	out := *run
	if run.Error != nil {
		msg := *run.Error
		out.Error = &msg
	}
	return &out
}

var _ storage.JobRunStore = (*JobRunStore)(nil)
