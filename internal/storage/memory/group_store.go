package memory

import (
	"context"
	"sort"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// GroupStore is the in-memory implementation of storage.GroupStore.
type GroupStore struct {
	db *DB
}

// Compile-time interface check.
var _ storage.GroupStore = (*GroupStore)(nil)

// EnsureExists creates the group if it is not already present.
func (s *GroupStore) EnsureExists(_ context.Context, name string) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.groups[name]; ok {
		return nil
	}
	s.db.groups[name] = &domain.Group{
		ID:        s.db.nextGroupID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.db.nextGroupID++
	return nil
}

// List returns all groups ordered by name.
func (s *GroupStore) List(_ context.Context) ([]*domain.Group, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]*domain.Group, 0, len(s.db.groups))
	for _, g := range s.db.groups {
		groupCopy := *g
		result = append(result, &groupCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// SyncLogStore is the in-memory implementation of storage.SyncLogStore.
type SyncLogStore struct {
	db *DB
}

// Compile-time interface check.
var _ storage.SyncLogStore = (*SyncLogStore)(nil)

// Insert appends a run outcome row.
func (s *SyncLogStore) Insert(_ context.Context, l *domain.SyncLog) error {
	if l == nil || l.SyncType == "" {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored := *l
	stored.ID = s.db.nextLogID
	s.db.nextLogID++
	if stored.SyncTime.IsZero() {
		stored.SyncTime = time.Now().UTC()
	}
	s.db.syncLogs = append(s.db.syncLogs, &stored)
	l.ID = stored.ID
	return nil
}

// Latest returns the most recent row for a sync type.
func (s *SyncLogStore) Latest(_ context.Context, syncType string) (*domain.SyncLog, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var latest *domain.SyncLog
	for _, l := range s.db.syncLogs {
		if l.SyncType != syncType {
			continue
		}
		if latest == nil || l.SyncTime.After(latest.SyncTime) || (l.SyncTime.Equal(latest.SyncTime) && l.ID > latest.ID) {
			latest = l
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	logCopy := *latest
	return &logCopy, nil
}

// MarketMetricStore is the in-memory implementation of storage.MarketMetricStore.
type MarketMetricStore struct {
	db *DB
}

// Compile-time interface check.
var _ storage.MarketMetricStore = (*MarketMetricStore)(nil)

// InsertBulk appends a batch of points.
func (s *MarketMetricStore) InsertBulk(_ context.Context, points []*domain.MarketMetricPoint) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, p := range points {
		if p == nil || p.Address == "" {
			return storage.ErrInvalidInput
		}
		pointCopy := *p
		s.db.metrics = append(s.db.metrics, &pointCopy)
	}
	return nil
}

// GetByAddress retrieves all points for an address, ordered by timestamp.
func (s *MarketMetricStore) GetByAddress(_ context.Context, address string) ([]*domain.MarketMetricPoint, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.MarketMetricPoint
	for _, p := range s.db.metrics {
		if p.Address == address {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}
