package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL. The
// (record_date, action, address) uniqueness that makes Record idempotent is
// enforced by a table constraint.
type HistoryStore struct {
	q querier
}

// NewHistoryStore creates a new HistoryStore bound to the pool.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{q: pool.Pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

const historyColumns = `id, record_date, action, address, name, created_at`

// Record appends an event. Recording an identical (date, action, address)
// row twice is a silent no-op.
func (s *HistoryStore) Record(ctx context.Context, e *domain.HistoryEvent) error {
	if e.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO project_history (record_date, action, address, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_date, action, address) DO NOTHING
	`

	_, err := s.q.Exec(ctx, query,
		domain.DayOf(e.Date),
		string(e.Action),
		e.Address,
		e.Name,
	)
	if err != nil {
		return fmt.Errorf("record history event: %w", err)
	}
	return nil
}

// LatestFor returns the most recent event for an address.
// Returns ErrNotFound if the address has no events.
func (s *HistoryStore) LatestFor(ctx context.Context, address string) (*domain.HistoryEvent, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM project_history
		WHERE address = $1
		ORDER BY record_date DESC, created_at DESC, id DESC
		LIMIT 1
	`

	row := s.q.QueryRow(ctx, query, address)
	e, err := scanHistoryEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	return e, nil
}

// LatestPerAddress returns the most recent event for every address.
func (s *HistoryStore) LatestPerAddress(ctx context.Context) (map[string]*domain.HistoryEvent, error) {
	query := `
		SELECT DISTINCT ON (address) ` + historyColumns + `
		FROM project_history
		ORDER BY address ASC, record_date DESC, created_at DESC, id DESC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get latest events: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]*domain.HistoryEvent)
	for rows.Next() {
		e, err := scanHistoryEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		latest[e.Address] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return latest, nil
}

// AddressesByActionThrough returns the distinct addresses having an event of
// the given action dated at or before cutoff.
func (s *HistoryStore) AddressesByActionThrough(ctx context.Context, action domain.Action, cutoff time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT address
		FROM project_history
		WHERE action = $1 AND record_date <= $2
		ORDER BY address ASC
	`

	rows, err := s.q.Query(ctx, query, string(action), domain.DayOf(cutoff))
	if err != nil {
		return nil, fmt.Errorf("get addresses by action: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

// ListRange returns events within [from, to], newest first.
func (s *HistoryStore) ListRange(ctx context.Context, from, to time.Time) ([]*domain.HistoryEvent, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM project_history
		WHERE record_date >= $1 AND record_date <= $2
		ORDER BY record_date DESC, created_at DESC, id DESC
	`

	rows, err := s.q.Query(ctx, query, domain.DayOf(from), domain.DayOf(to))
	if err != nil {
		return nil, fmt.Errorf("list events by range: %w", err)
	}
	defer rows.Close()

	return scanHistoryEvents(rows)
}

// ListAll returns every event ordered by date then address.
func (s *HistoryStore) ListAll(ctx context.Context) ([]*domain.HistoryEvent, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM project_history
		ORDER BY record_date ASC, address ASC, id ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all events: %w", err)
	}
	defer rows.Close()

	return scanHistoryEvents(rows)
}

// DeleteAdded removes the Added row for (date, address) if present.
func (s *HistoryStore) DeleteAdded(ctx context.Context, date time.Time, address string) error {
	query := `
		DELETE FROM project_history
		WHERE record_date = $1 AND action = $2 AND address = $3
	`

	_, err := s.q.Exec(ctx, query, domain.DayOf(date), string(domain.ActionAdded), address)
	if err != nil {
		return fmt.Errorf("delete added row: %w", err)
	}
	return nil
}

// scanHistoryEvent scans a single row into a HistoryEvent.
func scanHistoryEvent(row pgx.Row) (*domain.HistoryEvent, error) {
	var e domain.HistoryEvent
	var actionStr string

	err := row.Scan(
		&e.ID,
		&e.Date,
		&actionStr,
		&e.Address,
		&e.Name,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Action = domain.Action(actionStr)
	e.Date = domain.DayOf(e.Date)
	return &e, nil
}

// scanHistoryEvents scans multiple rows into a slice of HistoryEvent.
func scanHistoryEvents(rows pgx.Rows) ([]*domain.HistoryEvent, error) {
	var events []*domain.HistoryEvent

	for rows.Next() {
		e, err := scanHistoryEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return events, nil
}
