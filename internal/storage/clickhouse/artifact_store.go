package clickhouse

import (
	"context"
	"fmt"
	"time"

	"memecoin-calls/internal/storage"
)

// ArtifactStore implements storage.ArtifactStore on the
// price_history_artifacts ReplacingMergeTree table.
type ArtifactStore struct {
	conn    *Conn
	baseURL string
	now     func() time.Time
}

// NewArtifactStore creates a new ArtifactStore whose references point under baseURL.
func NewArtifactStore(conn *Conn, baseURL string) *ArtifactStore {
	return &ArtifactStore{conn: conn, baseURL: baseURL, now: time.Now}
}

// Compile-time interface check.
var _ storage.ArtifactStore = (*ArtifactStore)(nil)

// Store writes data under key. A later write for the same key supersedes
// earlier ones; reads always select the newest version.
func (s *ArtifactStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO price_history_artifacts (key, data, stored_at)
		VALUES (?, ?, ?)
	`, key, string(data), s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert artifact %s: %w", key, err)
	}
	return storage.ArtifactURL(s.baseURL, key), nil
}

// Load returns the newest data stored under key. Returns ErrNotFound if not exists.
func (s *ArtifactStore) Load(ctx context.Context, key string) ([]byte, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT data
		FROM price_history_artifacts
		WHERE key = ?
		ORDER BY stored_at DESC
		LIMIT 1
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query artifact %s: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate artifact rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scan artifact row: %w", err)
	}
	return []byte(data), nil
}
