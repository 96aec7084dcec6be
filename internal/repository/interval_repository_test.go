package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/models"
)

func setupTestDB(t *testing.T) *IntervalRepository {
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	db, err := NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewIntervalRepository(db)
}

func TestIntervalRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store loads empty list", func(t *testing.T) {
		repo := setupTestDB(t)

		intervals, err := repo.Load(ctx)

		require.NoError(t, err)
		assert.Empty(t, intervals)
	})

	t.Run("round trips intervals in saved order", func(t *testing.T) {
		repo := setupTestDB(t)
		saved := []models.TimeInterval{{Start: 0, End: 100}, {Start: 500, End: 500}, {Start: 150, End: 200}}

		require.NoError(t, repo.Save(ctx, saved))
		loaded, err := repo.Load(ctx)

		require.NoError(t, err)
		assert.Equal(t, saved, loaded)
	})

	t.Run("save replaces whole document", func(t *testing.T) {
		repo := setupTestDB(t)

		require.NoError(t, repo.Save(ctx, []models.TimeInterval{{Start: 0, End: 10}, {Start: 20, End: 30}, {Start: 40, End: 50}}))
		require.NoError(t, repo.Save(ctx, []models.TimeInterval{{Start: 0, End: 50}}))
		loaded, err := repo.Load(ctx)

		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{{Start: 0, End: 50}}, loaded)
	})

	t.Run("rejects invalid interval without touching stored data", func(t *testing.T) {
		repo := setupTestDB(t)
		require.NoError(t, repo.Save(ctx, []models.TimeInterval{{Start: 0, End: 10}}))

		err := repo.Save(ctx, []models.TimeInterval{{Start: 20, End: 5}})
		assert.ErrorIs(t, err, models.ErrInvalidInterval)

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{{Start: 0, End: 10}}, loaded)
	})
}

func TestIntervalRepository_Anchor(t *testing.T) {
	ctx := context.Background()

	t.Run("missing anchor reports not set", func(t *testing.T) {
		repo := setupTestDB(t)

		_, ok, err := repo.LoadAnchor(ctx)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save overwrite and clear", func(t *testing.T) {
		repo := setupTestDB(t)

		require.NoError(t, repo.SaveAnchor(ctx, 1700000000))
		require.NoError(t, repo.SaveAnchor(ctx, 1700000500))
		anchor, ok, err := repo.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1700000500), anchor)

		require.NoError(t, repo.ClearAnchor(ctx))
		_, ok, err = repo.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear all removes intervals and anchor", func(t *testing.T) {
		repo := setupTestDB(t)
		require.NoError(t, repo.Save(ctx, []models.TimeInterval{{Start: 0, End: 10}}))
		require.NoError(t, repo.SaveAnchor(ctx, 10))

		require.NoError(t, repo.ClearAll(ctx))

		intervals, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, intervals)
		_, ok, err := repo.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
