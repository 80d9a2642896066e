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

func TestSyncLogStore_InsertAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSyncLogStore(pool)
	ctx := context.Background()

	first := &domain.SyncLog{
		SyncType: domain.SyncTypeProjects,
		SyncTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Status:   domain.SyncStatusFailed,
		Message:  "fetch markets: timeout",
	}
	require.NoError(t, store.Insert(ctx, first))
	assert.NotZero(t, first.ID)

	second := &domain.SyncLog{
		SyncType: domain.SyncTypeProjects,
		SyncTime: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:   domain.SyncStatusSuccess,
		Message:  "created=2 updated=40",
	}
	require.NoError(t, store.Insert(ctx, second))

	latest, err := store.Latest(ctx, domain.SyncTypeProjects)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, domain.SyncStatusSuccess, latest.Status)
}

func TestSyncLogStore_LatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSyncLogStore(pool)

	_, err := store.Latest(context.Background(), domain.SyncTypeProjects)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
