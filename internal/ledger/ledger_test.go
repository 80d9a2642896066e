package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage/memory"
	"pendle-watch/internal/visibility"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newLedger(t *testing.T) (*Ledger, *memory.DB) {
	t.Helper()
	db := memory.New(visibility.New(3000))
	s := db.Stores()
	return New(s.Projects, s.History), db
}

func TestMembershipAsOf_ReplayRule(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	stores := db.Stores()

	// Created long before the cutoff, never touched by the ledger.
	require.NoError(t, stores.Projects.Insert(ctx, &domain.Project{
		Address: "0xold", CreatedAt: day(2025, 5, 1),
	}))
	// Created after the cutoff day.
	require.NoError(t, stores.Projects.Insert(ctx, &domain.Project{
		Address: "0xnew", CreatedAt: day(2025, 6, 3),
	}))
	// Added via ledger before cutoff.
	require.NoError(t, l.RecordEvent(ctx, day(2025, 6, 1), domain.ActionAdded, "0xadded", "added"))
	// Added then removed before cutoff.
	require.NoError(t, l.RecordEvent(ctx, day(2025, 5, 20), domain.ActionAdded, "0xgone", "gone"))
	require.NoError(t, l.RecordEvent(ctx, day(2025, 6, 1), domain.ActionRemoved, "0xgone", "gone"))
	// Removed after the cutoff: still a member as of the cutoff.
	require.NoError(t, stores.Projects.Insert(ctx, &domain.Project{
		Address: "0xlater", CreatedAt: day(2025, 5, 10),
	}))
	require.NoError(t, l.RecordEvent(ctx, day(2025, 6, 3), domain.ActionRemoved, "0xlater", "later"))

	members, err := l.MembershipAsOf(ctx, day(2025, 6, 2))
	require.NoError(t, err)

	require.Contains(t, members, "0xold")
	require.Contains(t, members, "0xadded")
	require.Contains(t, members, "0xlater")
	require.NotContains(t, members, "0xnew")
	require.NotContains(t, members, "0xgone")
}

func TestMembershipAsOf_CreationOnCutoffDayCounts(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()

	// Created at 23:00 on the cutoff day: strictly before cutoff+1d.
	require.NoError(t, db.Stores().Projects.Insert(ctx, &domain.Project{
		Address: "0xedge", CreatedAt: day(2025, 6, 2).Add(23 * time.Hour),
	}))

	members, err := l.MembershipAsOf(ctx, day(2025, 6, 2))
	require.NoError(t, err)
	require.Contains(t, members, "0xedge")
}

func TestDeduplicateConflicts(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	d1, d2 := day(2025, 6, 1), day(2025, 6, 2)
	require.NoError(t, l.RecordEvent(ctx, d1, domain.ActionAdded, "0xa", "a"))
	require.NoError(t, l.RecordEvent(ctx, d1, domain.ActionRemoved, "0xa", "a"))
	require.NoError(t, l.RecordEvent(ctx, d2, domain.ActionAdded, "0xa", "a"))
	require.NoError(t, l.RecordEvent(ctx, d1, domain.ActionAdded, "0xb", "b"))

	deleted, err := l.DeduplicateConflicts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	// Only the conflicting (d1, 0xa) Added row is gone.
	latestA, err := l.LatestEventFor(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, domain.ActionAdded, latestA.Action)
	require.True(t, latestA.Date.Equal(d2))

	latestB, err := l.LatestEventFor(ctx, "0xb")
	require.NoError(t, err)
	require.Equal(t, domain.ActionAdded, latestB.Action)

	// Idempotent.
	deleted, err = l.DeduplicateConflicts(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, deleted)
}

func TestRecordEvent_NormalizesToDay(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordEvent(ctx, day(2025, 6, 1).Add(15*time.Hour), domain.ActionAdded, "0xa", "a"))
	e, err := l.LatestEventFor(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, e.Date.Equal(day(2025, 6, 1)))
}
