package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormEntityStore_CRUD(t *testing.T) {
	store := NewGormEntityStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	property := uuid.New()
	created, err := store.Create(ctx, channel.EntityRoomType, channel.Scope{PropertyID: &property},
		channel.Values{"code": "DBL", "name": "Double"})
	require.NoError(t, err)
	assert.Equal(t, "DBL", created.Code())
	require.NotNil(t, created.Scope.PropertyID)
	assert.Equal(t, property, *created.Scope.PropertyID)

	_, err = store.Create(ctx, channel.EntityRoomType, channel.Scope{}, channel.Values{"code": "DBL", "name": "Double (annex)"})
	require.NoError(t, err)

	matches, err := store.FindByCode(ctx, channel.EntityRoomType, "DBL")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	updated, err := store.Update(ctx, channel.EntityRoomType, created.ID, channel.Values{"name": "Double Deluxe"})
	require.NoError(t, err)
	assert.Equal(t, "Double Deluxe", updated.Fields.String("name"))
	assert.Equal(t, "DBL", updated.Code())

	fetched, err := store.Get(ctx, channel.EntityRoomType, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Double Deluxe", fetched.Fields.String("name"))

	_, err = store.Get(ctx, channel.EntityReservation, created.ID)
	assert.ErrorIs(t, err, channel.ErrNotFound)

	require.NoError(t, store.Delete(ctx, channel.EntityRoomType, created.ID))
	assert.ErrorIs(t, store.Delete(ctx, channel.EntityRoomType, created.ID), channel.ErrNotFound)

	all, err := store.List(ctx, channel.EntityRoomType)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormEntityStore_UnknownType(t *testing.T) {
	store := NewGormEntityStore(testutil.NewSQLiteDB(t))
	_, err := store.Create(context.Background(), channel.EntityType("invoice"), channel.Scope{}, channel.Values{})
	assert.ErrorIs(t, err, channel.ErrInvalidInput)
}

func TestGormEntityStore_ChildOps(t *testing.T) {
	store := NewGormEntityStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	reservation, err := store.Create(ctx, channel.EntityReservation, channel.Scope{}, channel.Values{
		"reference": "R-1",
		"lines": []channel.ChildOp{
			{Kind: channel.ChildCreate, Values: channel.Values{"room": "101", "nights": 2}},
		},
	})
	require.NoError(t, err)

	lines := reservation.Children("lines")
	require.Len(t, lines, 1)
	lineID := lines[0].String(channel.FieldChildID)
	require.NotEmpty(t, lineID)

	updated, err := store.Update(ctx, channel.EntityReservation, reservation.ID, channel.Values{
		"lines": []channel.ChildOp{
			{Kind: channel.ChildUpdate, ID: uuid.MustParse(lineID), Values: channel.Values{"nights": 3}},
			{Kind: channel.ChildCreate, Values: channel.Values{"room": "102", "nights": 1}},
		},
	})
	require.NoError(t, err)

	lines = updated.Children("lines")
	require.Len(t, lines, 2)
	assert.Equal(t, lineID, lines[0].String(channel.FieldChildID))
	assert.Equal(t, "101", lines[0].String("room"))
	nights, ok := lines[0].Int("nights")
	require.True(t, ok)
	assert.Equal(t, 3, nights)
	assert.Equal(t, "102", lines[1].String("room"))
	assert.Equal(t, "R-1", updated.Fields.String("reference"))
}
