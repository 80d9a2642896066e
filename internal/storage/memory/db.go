// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and by --use-memory mode.
package memory

import (
	"context"
	"sync"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
	"pendle-watch/internal/visibility"
)

// DB holds all in-memory tables.
type DB struct {
	mu     sync.RWMutex
	policy visibility.Policy

	projects map[string]*domain.Project // keyed by address
	events   []*domain.HistoryEvent
	groups   map[string]*domain.Group // keyed by name
	syncLogs []*domain.SyncLog
	metrics  []*domain.MarketMetricPoint

	nextProjectID int64
	nextEventID   int64
	nextGroupID   int64
	nextLogID     int64
}

// New creates an empty in-memory database. The policy drives visibleOnly
// filtering on project list operations.
func New(policy visibility.Policy) *DB {
	return &DB{
		policy:        policy,
		projects:      make(map[string]*domain.Project),
		groups:        make(map[string]*domain.Group),
		nextProjectID: 1,
		nextEventID:   1,
		nextGroupID:   1,
		nextLogID:     1,
	}
}

// Stores returns the store views bound to this database.
func (db *DB) Stores() storage.Stores {
	return storage.Stores{
		Projects: &ProjectStore{db: db},
		History:  &HistoryStore{db: db},
		Groups:   &GroupStore{db: db},
		SyncLogs: &SyncLogStore{db: db},
	}
}

// Metrics returns the analytics sink view.
func (db *DB) Metrics() storage.MarketMetricStore {
	return &MarketMetricStore{db: db}
}

// WithinTx runs fn and restores the pre-call state if it returns an error.
// The memory database serves tests and single-process mode only, so the
// snapshot is taken up front and readers between fn's individual operations
// may observe intermediate state, matching the relaxed read isolation the
// system tolerates.
func (db *DB) WithinTx(ctx context.Context, fn func(s storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := db.snapshot()
	if err := fn(db.Stores()); err != nil {
		db.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// Compile-time interface check.
var _ storage.Transactor = (*DB)(nil)

type dbSnapshot struct {
	projects map[string]*domain.Project
	events   []*domain.HistoryEvent
	groups   map[string]*domain.Group
	syncLogs []*domain.SyncLog

	nextProjectID int64
	nextEventID   int64
	nextGroupID   int64
	nextLogID     int64
}

func (db *DB) snapshot() *dbSnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := &dbSnapshot{
		projects:      make(map[string]*domain.Project, len(db.projects)),
		events:        make([]*domain.HistoryEvent, len(db.events)),
		groups:        make(map[string]*domain.Group, len(db.groups)),
		syncLogs:      make([]*domain.SyncLog, len(db.syncLogs)),
		nextProjectID: db.nextProjectID,
		nextEventID:   db.nextEventID,
		nextGroupID:   db.nextGroupID,
		nextLogID:     db.nextLogID,
	}
	for addr, p := range db.projects {
		snap.projects[addr] = copyProject(p)
	}
	for i, e := range db.events {
		eventCopy := *e
		snap.events[i] = &eventCopy
	}
	for name, g := range db.groups {
		groupCopy := *g
		snap.groups[name] = &groupCopy
	}
	for i, l := range db.syncLogs {
		logCopy := *l
		snap.syncLogs[i] = &logCopy
	}
	return snap
}

func (db *DB) restore(snap *dbSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.projects = snap.projects
	db.events = snap.events
	db.groups = snap.groups
	db.syncLogs = snap.syncLogs
	db.nextProjectID = snap.nextProjectID
	db.nextEventID = snap.nextEventID
	db.nextGroupID = snap.nextGroupID
	db.nextLogID = snap.nextLogID
}

// copyProject deep-copies a project including its pointer fields.
func copyProject(p *domain.Project) *domain.Project {
	c := *p
	if p.ChainID != nil {
		v := *p.ChainID
		c.ChainID = &v
	}
	if p.Expiry != nil {
		v := *p.Expiry
		c.Expiry = &v
	}
	if p.TVL != nil {
		v := *p.TVL
		c.TVL = &v
	}
	if p.Volume24h != nil {
		v := *p.Volume24h
		c.Volume24h = &v
	}
	if p.ImpliedAPY != nil {
		v := *p.ImpliedAPY
		c.ImpliedAPY = &v
	}
	if p.PreDeletionMonitored != nil {
		v := *p.PreDeletionMonitored
		c.PreDeletionMonitored = &v
	}
	if p.RawPayload != nil {
		c.RawPayload = append([]byte(nil), p.RawPayload...)
	}
	return &c
}
