package postgres

import (
	"context"
	"fmt"

	"pendle-watch/internal/storage"
	"pendle-watch/internal/visibility"
)

// DB binds the Postgres stores to a pool and a visibility policy, and
// implements storage.Transactor over real database transactions.
type DB struct {
	pool   *Pool
	policy visibility.Policy
}

// NewDB creates a DB.
func NewDB(pool *Pool, policy visibility.Policy) *DB {
	return &DB{pool: pool, policy: policy}
}

// Stores returns pool-backed store views for non-transactional access.
func (db *DB) Stores() storage.Stores {
	return storesOver(db.pool.Pool, db.policy)
}

// WithinTx runs fn with stores bound to a single database transaction.
// Any error from fn rolls every mutation back.
func (db *DB) WithinTx(ctx context.Context, fn func(s storage.Stores) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	if err := fn(storesOver(tx, db.policy)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ storage.Transactor = (*DB)(nil)

func storesOver(q querier, policy visibility.Policy) storage.Stores {
	return storage.Stores{
		Projects: &ProjectStore{q: q, policy: policy},
		History:  &HistoryStore{q: q},
		Groups:   &GroupStore{q: q},
		SyncLogs: &SyncLogStore{q: q},
	}
}
