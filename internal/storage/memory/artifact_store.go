package memory

import (
	"context"
	"sync"

	"memecoin-calls/internal/storage"
)

// ArtifactStore is an in-memory implementation of storage.ArtifactStore.
type ArtifactStore struct {
	mu      sync.RWMutex
	data    map[string][]byte // keyed by artifact key
	baseURL string
}

// NewArtifactStore creates a new in-memory artifact store whose references
// point under baseURL.
func NewArtifactStore(baseURL string) *ArtifactStore {
	return &ArtifactStore{
		data:    make(map[string][]byte),
		baseURL: baseURL,
	}
}

// Store writes data under key, replacing previous content.
func (s *ArtifactStore) Store(_ context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.data[key] = buf
	s.mu.Unlock()

	return storage.ArtifactURL(s.baseURL, key), nil
}

// Load returns the data stored under key. Returns ErrNotFound if not exists.
func (s *ArtifactStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Count returns the number of stored artifacts.
func (s *ArtifactStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.ArtifactStore = (*ArtifactStore)(nil)
