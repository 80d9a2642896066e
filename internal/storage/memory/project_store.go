package memory

import (
	"context"
	"sort"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// ProjectStore is the in-memory implementation of storage.ProjectStore.
type ProjectStore struct {
	db *DB
}

// Compile-time interface check.
var _ storage.ProjectStore = (*ProjectStore)(nil)

// GetByAddress retrieves a project. Returns ErrNotFound if not exists.
func (s *ProjectStore) GetByAddress(_ context.Context, address string) (*domain.Project, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	p, ok := s.db.projects[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyProject(p), nil
}

// GetAll retrieves all projects, optionally visibility-filtered.
func (s *ProjectStore) GetAll(_ context.Context, visibleOnly bool) ([]*domain.Project, error) {
	return s.list(visibleOnly, nil), nil
}

// GetMonitored retrieves monitored projects, optionally filtered.
func (s *ProjectStore) GetMonitored(_ context.Context, visibleOnly bool) ([]*domain.Project, error) {
	monitored := true
	return s.list(visibleOnly, &monitored), nil
}

// GetUnmonitored retrieves unmonitored projects, optionally filtered.
func (s *ProjectStore) GetUnmonitored(_ context.Context, visibleOnly bool) ([]*domain.Project, error) {
	monitored := false
	return s.list(visibleOnly, &monitored), nil
}

func (s *ProjectStore) list(visibleOnly bool, monitored *bool) []*domain.Project {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.Project
	for _, p := range s.db.projects {
		if monitored != nil && p.Monitored != *monitored {
			continue
		}
		if visibleOnly && !s.db.policy.Project(p) {
			continue
		}
		result = append(result, copyProject(p))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Insert adds a new project. Returns ErrDuplicateKey if the address exists.
func (s *ProjectStore) Insert(_ context.Context, p *domain.Project) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.projects[p.Address]; exists {
		return storage.ErrDuplicateKey
	}

	stored := copyProject(p)
	stored.ID = s.db.nextProjectID
	s.db.nextProjectID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.db.projects[p.Address] = stored

	p.ID = stored.ID
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

// Update rewrites the mutable attributes of an existing project.
func (s *ProjectStore) Update(_ context.Context, p *domain.Project) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, ok := s.db.projects[p.Address]
	if !ok {
		return storage.ErrNotFound
	}

	stored := copyProject(p)
	stored.ID = existing.ID
	stored.CreatedAt = existing.CreatedAt
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}
	s.db.projects[p.Address] = stored
	return nil
}

// CreateOrUpdate inserts the project or updates it if the address exists.
func (s *ProjectStore) CreateOrUpdate(ctx context.Context, p *domain.Project) error {
	err := s.Insert(ctx, p)
	if err == storage.ErrDuplicateKey {
		return s.Update(ctx, p)
	}
	return err
}

// SetMonitored flips the user-controlled monitoring flag.
func (s *ProjectStore) SetMonitored(_ context.Context, address string, monitored bool) (*domain.Project, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.projects[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p.Monitored = monitored
	p.UpdatedAt = time.Now().UTC()
	return copyProject(p), nil
}

// SetGroup assigns a group label.
func (s *ProjectStore) SetGroup(_ context.Context, address, group string) (*domain.Project, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.projects[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p.Group = group
	p.UpdatedAt = time.Now().UTC()
	return copyProject(p), nil
}

// Delete removes a project.
func (s *ProjectStore) Delete(_ context.Context, address string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.projects[address]; !ok {
		return storage.ErrNotFound
	}
	delete(s.db.projects, address)
	return nil
}
