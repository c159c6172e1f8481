package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/storage"
)

// CallStore is an in-memory implementation of storage.CallStore.
type CallStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenCall // keyed by id
	now  func() time.Time
}

// NewCallStore creates a new in-memory call store.
func NewCallStore() *CallStore {
	return &CallStore{
		data: make(map[string]*domain.TokenCall),
		now:  time.Now,
	}
}

// Insert adds a new call. Returns ErrInvalidInput if the call fails
// validation and ErrDuplicateKey if id exists.
func (s *CallStore) Insert(_ context.Context, c *domain.TokenCall) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	stored := c.Clone()
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.data[c.ID] = stored
	return nil
}

// Save upserts a call by id.
func (s *CallStore) Save(_ context.Context, c *domain.TokenCall) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c.Clone()
	now := s.now().UTC()
	if prev, exists := s.data[c.ID]; exists {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.data[c.ID] = stored
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(_ context.Context, id string) (*domain.TokenCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// FindPendingPastTarget retrieves PENDING calls with target_date <= now.
func (s *CallStore) FindPendingPastTarget(_ context.Context, now time.Time) ([]*domain.TokenCall, error) {
	result := s.filter(func(c *domain.TokenCall) bool {
		return c.Status == domain.CallStatusPending && !c.TargetDate.After(now)
	})

	// Sort by target_date ASC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if !result[i].TargetDate.Equal(result[j].TargetDate) {
			return result[i].TargetDate.Before(result[j].TargetDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// FindVerifiedMissingArtifact retrieves verified calls without a price history reference.
func (s *CallStore) FindVerifiedMissingArtifact(_ context.Context) ([]*domain.TokenCall, error) {
	result := s.filter(func(c *domain.TokenCall) bool {
		return c.Status.IsVerified() && !c.HasArtifact()
	})

	// Sort by call_timestamp ASC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CallTimestamp.Equal(result[j].CallTimestamp) {
			return result[i].CallTimestamp.Before(result[j].CallTimestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListVerified retrieves all VERIFIED_SUCCESS / VERIFIED_FAIL calls.
func (s *CallStore) ListVerified(_ context.Context) ([]*domain.TokenCall, error) {
	result := s.filter(func(c *domain.TokenCall) bool {
		return c.Status.IsVerified()
	})

	// Sort by user_id ASC, call_timestamp ASC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		if !result[i].CallTimestamp.Equal(result[j].CallTimestamp) {
			return result[i].CallTimestamp.Before(result[j].CallTimestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// filter returns copies of all calls matching keep.
func (s *CallStore) filter(keep func(*domain.TokenCall) bool) []*domain.TokenCall {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TokenCall
	for _, c := range s.data {
		if keep(c) {
			result = append(result, c.Clone())
		}
	}
	return result
}

// Verify interface compliance at compile time.
var _ storage.CallStore = (*CallStore)(nil)
