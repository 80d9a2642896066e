package postgres

import (
	"context"
	"fmt"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// SyncLogStore implements storage.SyncLogStore using PostgreSQL.
type SyncLogStore struct {
	q querier
}

// NewSyncLogStore creates a new SyncLogStore bound to the pool.
func NewSyncLogStore(pool *Pool) *SyncLogStore {
	return &SyncLogStore{q: pool.Pool}
}

// Compile-time interface check.
var _ storage.SyncLogStore = (*SyncLogStore)(nil)

// Insert appends a run outcome row.
func (s *SyncLogStore) Insert(ctx context.Context, l *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (sync_type, sync_time, status, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := s.q.QueryRow(ctx, query, l.SyncType, l.SyncTime, l.Status, l.Message).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// Latest returns the most recent row for a sync type.
// Returns ErrNotFound if none exists.
func (s *SyncLogStore) Latest(ctx context.Context, syncType string) (*domain.SyncLog, error) {
	query := `
		SELECT id, sync_type, sync_time, status, message
		FROM sync_logs
		WHERE sync_type = $1
		ORDER BY sync_time DESC, id DESC
		LIMIT 1
	`

	var l domain.SyncLog
	err := s.q.QueryRow(ctx, query, syncType).Scan(&l.ID, &l.SyncType, &l.SyncTime, &l.Status, &l.Message)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest sync log: %w", err)
	}
	return &l, nil
}
