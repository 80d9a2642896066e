package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pendle-watch/internal/storage"
)

func TestDB_WithinTxCommits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	db := NewDB(pool, testPolicy())
	ctx := context.Background()

	err := db.WithinTx(ctx, func(s storage.Stores) error {
		if err := s.Projects.Insert(ctx, testProject("0xtx", "tx", 5000)); err != nil {
			return err
		}
		return s.Groups.EnsureExists(ctx, "Other")
	})
	require.NoError(t, err)

	p, err := db.Stores().Projects.GetByAddress(ctx, "0xtx")
	require.NoError(t, err)
	assert.Equal(t, "tx", p.Name)
}

func TestDB_WithinTxRollsBackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	db := NewDB(pool, testPolicy())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(s storage.Stores) error {
		if err := s.Projects.Insert(ctx, testProject("0xroll", "roll", 5000)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = db.Stores().Projects.GetByAddress(ctx, "0xroll")
	assert.ErrorIs(t, err, storage.ErrNotFound, "insert must not survive the rollback")
}
