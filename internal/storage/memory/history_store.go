package memory

import (
	"context"
	"sort"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// HistoryStore is the in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	db *DB
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Record appends an event; identical (date, action, address) rows are a no-op.
func (s *HistoryStore) Record(_ context.Context, e *domain.HistoryEvent) error {
	if e == nil || e.Address == "" || e.Date.IsZero() {
		return storage.ErrInvalidInput
	}
	if e.Action != domain.ActionAdded && e.Action != domain.ActionRemoved {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	day := domain.DayOf(e.Date)
	for _, existing := range s.db.events {
		if existing.Date.Equal(day) && existing.Action == e.Action && existing.Address == e.Address {
			return nil
		}
	}

	stored := *e
	stored.ID = s.db.nextEventID
	s.db.nextEventID++
	stored.Date = day
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.db.events = append(s.db.events, &stored)
	return nil
}

// LatestFor returns the most recent event for an address.
func (s *HistoryStore) LatestFor(_ context.Context, address string) (*domain.HistoryEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var latest *domain.HistoryEvent
	for _, e := range s.db.events {
		if e.Address != address {
			continue
		}
		if latest == nil || eventAfter(e, latest) {
			latest = e
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	eventCopy := *latest
	return &eventCopy, nil
}

// LatestPerAddress returns the most recent event for every address.
func (s *HistoryStore) LatestPerAddress(_ context.Context) (map[string]*domain.HistoryEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	latest := make(map[string]*domain.HistoryEvent)
	for _, e := range s.db.events {
		cur, ok := latest[e.Address]
		if !ok || eventAfter(e, cur) {
			eventCopy := *e
			latest[e.Address] = &eventCopy
		}
	}
	return latest, nil
}

// AddressesByActionThrough returns distinct addresses with a matching event
// dated at or before cutoff.
func (s *HistoryStore) AddressesByActionThrough(_ context.Context, action domain.Action, cutoff time.Time) ([]string, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	day := domain.DayOf(cutoff)
	seen := make(map[string]struct{})
	var result []string
	for _, e := range s.db.events {
		if e.Action != action || e.Date.After(day) {
			continue
		}
		if _, ok := seen[e.Address]; ok {
			continue
		}
		seen[e.Address] = struct{}{}
		result = append(result, e.Address)
	}
	sort.Strings(result)
	return result, nil
}

// ListRange returns events within [from, to], newest first.
func (s *HistoryStore) ListRange(_ context.Context, from, to time.Time) ([]*domain.HistoryEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	fromDay := domain.DayOf(from)
	toDay := domain.DayOf(to)

	var result []*domain.HistoryEvent
	for _, e := range s.db.events {
		if e.Date.Before(fromDay) || e.Date.After(toDay) {
			continue
		}
		eventCopy := *e
		result = append(result, &eventCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return eventAfter(result[i], result[j])
	})
	return result, nil
}

// ListAll returns every event ordered by date then address.
func (s *HistoryStore) ListAll(_ context.Context) ([]*domain.HistoryEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]*domain.HistoryEvent, 0, len(s.db.events))
	for _, e := range s.db.events {
		eventCopy := *e
		result = append(result, &eventCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// DeleteAdded removes the Added row for (date, address) if present.
func (s *HistoryStore) DeleteAdded(_ context.Context, date time.Time, address string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	day := domain.DayOf(date)
	kept := s.db.events[:0]
	for _, e := range s.db.events {
		if e.Action == domain.ActionAdded && e.Address == address && e.Date.Equal(day) {
			continue
		}
		kept = append(kept, e)
	}
	s.db.events = kept
	return nil
}

// eventAfter reports whether a is strictly more recent than b.
func eventAfter(a, b *domain.HistoryEvent) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
