package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestHistoryStore_RecordIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	e := &domain.HistoryEvent{
		Date:    day(2025, 6, 1),
		Action:  domain.ActionAdded,
		Address: "0xa",
		Name:    "A",
	}
	require.NoError(t, store.Record(ctx, e))
	require.NoError(t, store.Record(ctx, e), "identical row is a silent no-op")

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHistoryStore_RecordNormalizesDate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	// Two intra-day timestamps land on the same ledger row.
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), Action: domain.ActionAdded, Address: "0xa",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: time.Date(2025, 6, 1, 17, 45, 0, 0, time.UTC), Action: domain.ActionAdded, Address: "0xa",
	}))

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Date.Equal(day(2025, 6, 1)))
}

func TestHistoryStore_LatestFor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xa", Name: "A",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 3), Action: domain.ActionRemoved, Address: "0xa", Name: "A",
	}))

	latest, err := store.LatestFor(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRemoved, latest.Action)
	assert.True(t, latest.Date.Equal(day(2025, 6, 3)))

	_, err = store.LatestFor(ctx, "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHistoryStore_LatestPerAddress(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xa",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 2), Action: domain.ActionRemoved, Address: "0xa",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 2), Action: domain.ActionAdded, Address: "0xb",
	}))

	latest, err := store.LatestPerAddress(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, domain.ActionRemoved, latest["0xa"].Action)
	assert.Equal(t, domain.ActionAdded, latest["0xb"].Action)
}

func TestHistoryStore_AddressesByActionThrough(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xb",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 2), Action: domain.ActionAdded, Address: "0xa",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 5), Action: domain.ActionAdded, Address: "0xc",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionRemoved, Address: "0xd",
	}))

	added, err := store.AddressesByActionThrough(ctx, domain.ActionAdded, day(2025, 6, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, added, "cutoff is inclusive, later events excluded")

	removed, err := store.AddressesByActionThrough(ctx, domain.ActionRemoved, day(2025, 6, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"0xd"}, removed)
}

func TestHistoryStore_ListRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	for d := 1; d <= 4; d++ {
		require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
			Date: day(2025, 6, d), Action: domain.ActionAdded, Address: "0xa",
		}))
	}

	events, err := store.ListRange(ctx, day(2025, 6, 2), day(2025, 6, 3))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Date.Equal(day(2025, 6, 3)), "newest first")
	assert.True(t, events[1].Date.Equal(day(2025, 6, 2)))
}

func TestHistoryStore_DeleteAdded(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xa",
	}))
	require.NoError(t, store.Record(ctx, &domain.HistoryEvent{
		Date: day(2025, 6, 1), Action: domain.ActionRemoved, Address: "0xa",
	}))

	require.NoError(t, store.DeleteAdded(ctx, day(2025, 6, 1), "0xa"))

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActionRemoved, events[0].Action)

	// Deleting when no Added row exists is not an error.
	require.NoError(t, store.DeleteAdded(ctx, day(2025, 6, 1), "0xa"))
}
