package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormBindingRepository_Create(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormBindingRepository(db)
	ctx := context.Background()

	t.Run("creates and finds a binding", func(t *testing.T) {
		internalID := uuid.New()
		binding, err := channel.NewBinding("ota", channel.EntityRoomType, internalID, "42")
		require.NoError(t, err)

		require.NoError(t, repo.Create(ctx, binding))

		found, err := repo.FindByExternal(ctx, "ota", channel.EntityRoomType, "42")
		require.NoError(t, err)
		assert.Equal(t, internalID, found.InternalID)
		assert.Nil(t, found.LastImportAt)
		assert.Nil(t, found.LastExportAt)

		byInternal, err := repo.FindByInternal(ctx, "ota", channel.EntityRoomType, internalID)
		require.NoError(t, err)
		assert.Equal(t, "42", byInternal.ExternalID)
	})

	t.Run("second binding for the same external id fails", func(t *testing.T) {
		first, err := channel.NewBinding("ota", channel.EntityRoomType, uuid.New(), "77")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, first))

		second, err := channel.NewBinding("ota", channel.EntityRoomType, uuid.New(), "77")
		require.NoError(t, err)
		err = repo.Create(ctx, second)
		assert.ErrorIs(t, err, channel.ErrDuplicateBinding)
	})

	t.Run("second binding for the same internal id fails", func(t *testing.T) {
		internalID := uuid.New()
		first, err := channel.NewBinding("ota", channel.EntityListing, internalID, "a")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, first))

		second, err := channel.NewBinding("ota", channel.EntityListing, internalID, "b")
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, second), channel.ErrDuplicateBinding)
	})

	t.Run("unexported bindings do not collide", func(t *testing.T) {
		first, err := channel.NewBinding("ota", channel.EntityPricelist, uuid.New(), "")
		require.NoError(t, err)
		second, err := channel.NewBinding("ota", channel.EntityPricelist, uuid.New(), "")
		require.NoError(t, err)

		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))
	})

	t.Run("same external id on another backend is allowed", func(t *testing.T) {
		first, err := channel.NewBinding("ota-a", channel.EntityReservation, uuid.New(), "r1")
		require.NoError(t, err)
		second, err := channel.NewBinding("ota-b", channel.EntityReservation, uuid.New(), "r1")
		require.NoError(t, err)

		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))
	})
}

func TestGormBindingRepository_FindNotFound(t *testing.T) {
	repo := NewGormBindingRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	_, err := repo.FindByExternal(ctx, "ota", channel.EntityRoomType, "missing")
	assert.ErrorIs(t, err, channel.ErrNotFound)

	_, err = repo.FindByInternal(ctx, "ota", channel.EntityRoomType, uuid.New())
	assert.ErrorIs(t, err, channel.ErrNotFound)

	_, err = repo.FindByExternal(ctx, "ota", channel.EntityRoomType, "")
	assert.ErrorIs(t, err, channel.ErrInvalidInput)
}

func TestGormBindingRepository_Upsert(t *testing.T) {
	repo := NewGormBindingRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()
	internalID := uuid.New()

	importedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return importedAt }

	created, err := repo.Upsert(ctx, "ota", channel.EntityRoomType, internalID, "42", channel.DirectionImport)
	require.NoError(t, err)
	require.NotNil(t, created.LastImportAt)
	assert.True(t, created.LastImportAt.Equal(importedAt))
	assert.Nil(t, created.LastExportAt)

	exportedAt := importedAt.Add(time.Hour)
	repo.now = func() time.Time { return exportedAt }

	updated, err := repo.Upsert(ctx, "ota", channel.EntityRoomType, internalID, "", channel.DirectionExport)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "42", updated.ExternalID)

	found, err := repo.FindByInternal(ctx, "ota", channel.EntityRoomType, internalID)
	require.NoError(t, err)
	require.NotNil(t, found.LastImportAt)
	require.NotNil(t, found.LastExportAt)
	assert.True(t, found.LastImportAt.Equal(importedAt), "import timestamp must be left untouched")
	assert.True(t, found.LastExportAt.Equal(exportedAt))

	bindings, err := repo.ListByBackend(ctx, "ota", channel.EntityRoomType)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)
}

func TestGormBindingRepository_UpsertConflict(t *testing.T) {
	repo := NewGormBindingRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "ota", channel.EntityRoomType, uuid.New(), "42", channel.DirectionImport)
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, "ota", channel.EntityRoomType, uuid.New(), "42", channel.DirectionImport)
	assert.ErrorIs(t, err, channel.ErrDuplicateBinding)

	_, err = repo.Upsert(ctx, "ota", channel.EntityRoomType, uuid.New(), "43", channel.Direction("SIDEWAYS"))
	assert.ErrorIs(t, err, channel.ErrInvalidInput)
}

func TestGormBindingRepository_DeleteByInternal(t *testing.T) {
	repo := NewGormBindingRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()
	internalID := uuid.New()

	_, err := repo.Upsert(ctx, "ota-a", channel.EntityRoomType, internalID, "1", channel.DirectionExport)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "ota-b", channel.EntityRoomType, internalID, "9", channel.DirectionExport)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "ota-a", channel.EntityRoomType, uuid.New(), "2", channel.DirectionExport)
	require.NoError(t, err)

	deleted, err := repo.DeleteByInternal(ctx, channel.EntityRoomType, internalID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.ListByBackend(ctx, "ota-a", channel.EntityRoomType)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "2", remaining[0].ExternalID)
}
