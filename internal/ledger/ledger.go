// Package ledger derives qualifying-universe membership from the append-only
// project history. Because removal is logical and rows are never deleted,
// membership as of a past day cannot be read off the projects table; it is
// reconstructed by replaying Added/Removed events against creation times.
package ledger

import (
	"context"
	"fmt"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// Ledger exposes history recording and membership reconstruction over a
// project store and a history store. Construct it over transaction-scoped
// stores when used inside a reconciliation run.
type Ledger struct {
	projects storage.ProjectStore
	history  storage.HistoryStore
}

// New creates a Ledger over the given stores.
func New(projects storage.ProjectStore, history storage.HistoryStore) *Ledger {
	return &Ledger{projects: projects, history: history}
}

// RecordEvent appends one membership transition. Identical (date, action,
// address) rows are silently suppressed.
func (l *Ledger) RecordEvent(ctx context.Context, date time.Time, action domain.Action, address, name string) error {
	return l.history.Record(ctx, &domain.HistoryEvent{
		Date:    domain.DayOf(date),
		Action:  action,
		Address: address,
		Name:    name,
	})
}

// LatestEventFor returns the most recent event for an address, or
// storage.ErrNotFound. The caller distinguishes restore (latest is Removed)
// from first-removal (latest is Added, or no event).
func (l *Ledger) LatestEventFor(ctx context.Context, address string) (*domain.HistoryEvent, error) {
	return l.history.LatestFor(ctx, address)
}

// MembershipAsOf reconstructs the set of addresses in the qualifying
// universe at the end of the given day:
//
//	(projects created before cutoff+1d) ∪ (Added dated <= cutoff) − (Removed dated <= cutoff)
func (l *Ledger) MembershipAsOf(ctx context.Context, cutoff time.Time) (map[string]struct{}, error) {
	cutoffDay := domain.DayOf(cutoff)
	nextDay := cutoffDay.AddDate(0, 0, 1)

	members := make(map[string]struct{})

	all, err := l.projects.GetAll(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	for _, p := range all {
		if p.CreatedAt.UTC().Before(nextDay) {
			members[p.Address] = struct{}{}
		}
	}

	added, err := l.history.AddressesByActionThrough(ctx, domain.ActionAdded, cutoffDay)
	if err != nil {
		return nil, fmt.Errorf("load added events: %w", err)
	}
	for _, addr := range added {
		members[addr] = struct{}{}
	}

	removed, err := l.history.AddressesByActionThrough(ctx, domain.ActionRemoved, cutoffDay)
	if err != nil {
		return nil, fmt.Errorf("load removed events: %w", err)
	}
	for _, addr := range removed {
		delete(members, addr)
	}

	return members, nil
}

// DeduplicateConflicts scans all events grouped by (date, address) and,
// where both an Added and a Removed row exist for the same pair, deletes the
// Added row. Safe to re-run; returns the number of rows deleted.
func (l *Ledger) DeduplicateConflicts(ctx context.Context) (int, error) {
	all, err := l.history.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	type pairKey struct {
		date    time.Time
		address string
	}
	type pair struct {
		added   bool
		removed bool
	}
	pairs := make(map[pairKey]*pair)
	for _, e := range all {
		k := pairKey{date: e.Date, address: e.Address}
		p, ok := pairs[k]
		if !ok {
			p = &pair{}
			pairs[k] = p
		}
		switch e.Action {
		case domain.ActionAdded:
			p.added = true
		case domain.ActionRemoved:
			p.removed = true
		}
	}

	deleted := 0
	for k, p := range pairs {
		if p.added && p.removed {
			if err := l.history.DeleteAdded(ctx, k.date, k.address); err != nil {
				return deleted, fmt.Errorf("delete conflicting added row for %s on %s: %w", k.address, k.date.Format("2006-01-02"), err)
			}
			deleted++
		}
	}
	return deleted, nil
}
