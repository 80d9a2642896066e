package storage

import (
	"context"
	"time"

	"pendle-watch/internal/domain"
)

// ProjectStore provides access to the projects table.
//
// List operations take visibleOnly: when true, only projects currently in
// the qualifying universe (per the visibility policy the store was built
// with) are returned, ordered by group then name. Read-time filtering is
// independent of ledger contents.
type ProjectStore interface {
	// GetByAddress retrieves a project. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Project, error)

	// GetAll retrieves all projects, optionally visibility-filtered.
	GetAll(ctx context.Context, visibleOnly bool) ([]*domain.Project, error)

	// GetMonitored retrieves monitored projects, optionally filtered.
	GetMonitored(ctx context.Context, visibleOnly bool) ([]*domain.Project, error)

	// GetUnmonitored retrieves unmonitored projects, optionally filtered.
	GetUnmonitored(ctx context.Context, visibleOnly bool) ([]*domain.Project, error)

	// Insert adds a new project. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, p *domain.Project) error

	// Update rewrites the mutable attributes of an existing project
	// (matched by address). Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Project) error

	// CreateOrUpdate inserts the project or updates it if the address exists.
	CreateOrUpdate(ctx context.Context, p *domain.Project) error

	// SetMonitored flips the user-controlled monitoring flag.
	// Returns ErrNotFound if the address does not exist.
	SetMonitored(ctx context.Context, address string, monitored bool) (*domain.Project, error)

	// SetGroup assigns a group label. Returns ErrNotFound if not exists.
	SetGroup(ctx context.Context, address, group string) (*domain.Project, error)

	// Delete removes a project. Returns ErrNotFound if not exists.
	// Reconciliation never deletes; this serves offline maintenance only.
	Delete(ctx context.Context, address string) error
}

// HistoryStore provides access to the append-only project_history table.
type HistoryStore interface {
	// Record appends an event. Recording an identical (date, action,
	// address) row twice is a silent no-op.
	Record(ctx context.Context, e *domain.HistoryEvent) error

	// LatestFor returns the most recent event for an address across all
	// dates (ties within a day broken by CreatedAt, then ID).
	// Returns ErrNotFound if the address has no events.
	LatestFor(ctx context.Context, address string) (*domain.HistoryEvent, error)

	// LatestPerAddress returns the most recent event for every address.
	LatestPerAddress(ctx context.Context) (map[string]*domain.HistoryEvent, error)

	// AddressesByActionThrough returns the distinct addresses having an
	// event of the given action dated at or before cutoff (a UTC day).
	AddressesByActionThrough(ctx context.Context, action domain.Action, cutoff time.Time) ([]string, error)

	// ListRange returns events with from <= date <= to (UTC days),
	// ordered by date descending then CreatedAt descending.
	ListRange(ctx context.Context, from, to time.Time) ([]*domain.HistoryEvent, error)

	// ListAll returns every event, ordered by date then address.
	ListAll(ctx context.Context) ([]*domain.HistoryEvent, error)

	// DeleteAdded removes the Added row for (date, address) if present.
	// Used when Removed dominates Added on the same day.
	DeleteAdded(ctx context.Context, date time.Time, address string) error
}

// GroupStore provides access to the project_groups table.
type GroupStore interface {
	// EnsureExists creates the group if it is not already present.
	EnsureExists(ctx context.Context, name string) error

	// List returns all groups ordered by name.
	List(ctx context.Context) ([]*domain.Group, error)
}

// SyncLogStore provides access to the sync_logs table.
type SyncLogStore interface {
	// Insert appends a run outcome row.
	Insert(ctx context.Context, l *domain.SyncLog) error

	// Latest returns the most recent row for a sync type.
	// Returns ErrNotFound if none exists.
	Latest(ctx context.Context, syncType string) (*domain.SyncLog, error)
}

// MarketMetricStore is the analytics sink for per-run market samples.
type MarketMetricStore interface {
	// InsertBulk appends a batch of points.
	InsertBulk(ctx context.Context, points []*domain.MarketMetricPoint) error

	// GetByAddress retrieves all points for an address, ordered by timestamp.
	GetByAddress(ctx context.Context, address string) ([]*domain.MarketMetricPoint, error)
}

// Stores bundles the transactional stores visible inside one unit of work.
type Stores struct {
	Projects ProjectStore
	History  HistoryStore
	Groups   GroupStore
	SyncLogs SyncLogStore
}

// Transactor runs a function within one atomic unit of work. If fn returns
// an error every mutation made through the passed Stores is rolled back.
// Reconciliation requires this: a run either commits in full or not at all.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(s Stores) error) error
}
