package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
	"pendle-watch/internal/visibility"
)

// ProjectStore implements storage.ProjectStore using PostgreSQL.
//
// The visibleOnly filter is applied in Go through the visibility policy so
// that the qualifying predicate lives in exactly one place.
type ProjectStore struct {
	q      querier
	policy visibility.Policy
}

// NewProjectStore creates a new ProjectStore bound to the pool.
func NewProjectStore(pool *Pool, policy visibility.Policy) *ProjectStore {
	return &ProjectStore{q: pool.Pool, policy: policy}
}

// Compile-time interface check.
var _ storage.ProjectStore = (*ProjectStore)(nil)

const projectColumns = `
	id, address, name, chain_id, group_name, expiry, tvl, volume_24h,
	implied_apy, yt_address, monitored, pre_deletion_monitored, raw_payload,
	created_at, updated_at
`

// GetByAddress retrieves a project. Returns ErrNotFound if not exists.
func (s *ProjectStore) GetByAddress(ctx context.Context, address string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE address = $1`

	row := s.q.QueryRow(ctx, query, address)
	p, err := scanProject(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get project by address: %w", err)
	}
	return p, nil
}

// GetAll retrieves all projects, optionally visibility-filtered.
func (s *ProjectStore) GetAll(ctx context.Context, visibleOnly bool) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY group_name ASC, name ASC, address ASC`
	return s.list(ctx, query, visibleOnly)
}

// GetMonitored retrieves monitored projects, optionally filtered.
func (s *ProjectStore) GetMonitored(ctx context.Context, visibleOnly bool) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE monitored ORDER BY group_name ASC, name ASC, address ASC`
	return s.list(ctx, query, visibleOnly)
}

// GetUnmonitored retrieves unmonitored projects, optionally filtered.
func (s *ProjectStore) GetUnmonitored(ctx context.Context, visibleOnly bool) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE NOT monitored ORDER BY group_name ASC, name ASC, address ASC`
	return s.list(ctx, query, visibleOnly)
}

func (s *ProjectStore) list(ctx context.Context, query string, visibleOnly bool) ([]*domain.Project, error) {
	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		return nil, err
	}
	if !visibleOnly {
		return projects, nil
	}

	visible := projects[:0]
	for _, p := range projects {
		if s.policy.Project(p) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// Insert adds a new project. Returns ErrDuplicateKey if the address exists.
// The generated id is written back into p.
func (s *ProjectStore) Insert(ctx context.Context, p *domain.Project) error {
	if p.Address == "" {
		return storage.ErrInvalidInput
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	query := `
		INSERT INTO projects (
			address, name, chain_id, group_name, expiry, tvl, volume_24h,
			implied_apy, yt_address, monitored, pre_deletion_monitored,
			raw_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := s.q.QueryRow(ctx, query,
		p.Address,
		p.Name,
		p.ChainID,
		p.Group,
		p.Expiry,
		p.TVL,
		p.Volume24h,
		p.ImpliedAPY,
		p.YTAddress,
		p.Monitored,
		p.PreDeletionMonitored,
		p.RawPayload,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Update rewrites the mutable attributes of an existing project, matched by
// address. Returns ErrNotFound if not exists.
func (s *ProjectStore) Update(ctx context.Context, p *domain.Project) error {
	query := `
		UPDATE projects SET
			name = $2,
			chain_id = $3,
			group_name = $4,
			expiry = $5,
			tvl = $6,
			volume_24h = $7,
			implied_apy = $8,
			yt_address = $9,
			monitored = $10,
			pre_deletion_monitored = $11,
			raw_payload = $12,
			updated_at = $13
		WHERE address = $1
	`

	tag, err := s.q.Exec(ctx, query,
		p.Address,
		p.Name,
		p.ChainID,
		p.Group,
		p.Expiry,
		p.TVL,
		p.Volume24h,
		p.ImpliedAPY,
		p.YTAddress,
		p.Monitored,
		p.PreDeletionMonitored,
		p.RawPayload,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateOrUpdate inserts the project or updates it if the address exists.
func (s *ProjectStore) CreateOrUpdate(ctx context.Context, p *domain.Project) error {
	err := s.Insert(ctx, p)
	if err == nil {
		return nil
	}
	if err != storage.ErrDuplicateKey {
		return err
	}
	return s.Update(ctx, p)
}

// SetMonitored flips the user-controlled monitoring flag.
// Returns ErrNotFound if the address does not exist.
func (s *ProjectStore) SetMonitored(ctx context.Context, address string, monitored bool) (*domain.Project, error) {
	query := `
		UPDATE projects SET monitored = $2, updated_at = NOW()
		WHERE address = $1
		RETURNING ` + projectColumns

	row := s.q.QueryRow(ctx, query, address, monitored)
	p, err := scanProject(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("set monitored: %w", err)
	}
	return p, nil
}

// SetGroup assigns a group label. Returns ErrNotFound if not exists.
func (s *ProjectStore) SetGroup(ctx context.Context, address, group string) (*domain.Project, error) {
	query := `
		UPDATE projects SET group_name = $2, updated_at = NOW()
		WHERE address = $1
		RETURNING ` + projectColumns

	row := s.q.QueryRow(ctx, query, address, group)
	p, err := scanProject(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("set group: %w", err)
	}
	return p, nil
}

// Delete removes a project. Reconciliation never calls this; it exists for
// offline maintenance tooling.
func (s *ProjectStore) Delete(ctx context.Context, address string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM projects WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanProject scans a single row into a Project.
func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project

	err := row.Scan(
		&p.ID,
		&p.Address,
		&p.Name,
		&p.ChainID,
		&p.Group,
		&p.Expiry,
		&p.TVL,
		&p.Volume24h,
		&p.ImpliedAPY,
		&p.YTAddress,
		&p.Monitored,
		&p.PreDeletionMonitored,
		&p.RawPayload,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanProjects scans multiple rows into a slice of Project.
func scanProjects(rows pgx.Rows) ([]*domain.Project, error) {
	var projects []*domain.Project

	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project rows: %w", err)
	}

	return projects, nil
}
