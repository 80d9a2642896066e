package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pendle-watch/internal/storage"
)

func TestGroupStore_EnsureExistsAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewGroupStore(pool)
	ctx := context.Background()

	require.NoError(t, store.EnsureExists(ctx, "Other"))
	require.NoError(t, store.EnsureExists(ctx, "Stables"))
	require.NoError(t, store.EnsureExists(ctx, "Other"), "duplicate ensure is a no-op")

	groups, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Other", groups[0].Name)
	assert.Equal(t, "Stables", groups[1].Name)
}

func TestGroupStore_EnsureExistsRejectsEmptyName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewGroupStore(pool)

	err := store.EnsureExists(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
