package postgres

import (
	"context"
	"fmt"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// GroupStore implements storage.GroupStore using PostgreSQL.
type GroupStore struct {
	q querier
}

// NewGroupStore creates a new GroupStore bound to the pool.
func NewGroupStore(pool *Pool) *GroupStore {
	return &GroupStore{q: pool.Pool}
}

// Compile-time interface check.
var _ storage.GroupStore = (*GroupStore)(nil)

// EnsureExists creates the group if it is not already present.
func (s *GroupStore) EnsureExists(ctx context.Context, name string) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO project_groups (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`

	if _, err := s.q.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("ensure group exists: %w", err)
	}
	return nil
}

// List returns all groups ordered by name.
func (s *GroupStore) List(ctx context.Context) ([]*domain.Group, error) {
	query := `
		SELECT id, name, created_at
		FROM project_groups
		ORDER BY name ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}
