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

func TestGormRestrictionRepository_Save(t *testing.T) {
	repo := NewGormRestrictionRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	plan := uuid.New()
	roomType := uuid.New()
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("rejects invalid stay bounds", func(t *testing.T) {
		rule := &channel.RestrictionRule{
			BackendID: "ota", PlanID: plan, AppliedOn: channel.AppliedOnRoomType,
			RoomTypeID: &roomType, Date: day, MinStay: 5, MaxStay: 2,
		}
		assert.ErrorIs(t, repo.Save(ctx, rule), channel.ErrInvalidInput)
	})

	t.Run("allows a single global rule per plan", func(t *testing.T) {
		global := &channel.RestrictionRule{BackendID: "ota", PlanID: plan, AppliedOn: channel.AppliedOnGlobal, Date: day}
		require.NoError(t, repo.Save(ctx, global))

		// saving the same rule again is an update
		global.MinStay = 2
		require.NoError(t, repo.Save(ctx, global))

		second := &channel.RestrictionRule{BackendID: "ota", PlanID: plan, AppliedOn: channel.AppliedOnGlobal, Date: day}
		assert.ErrorIs(t, repo.Save(ctx, second), channel.ErrInvalidInput)
	})

	t.Run("room type rule replaces the rule of the same day", func(t *testing.T) {
		first := &channel.RestrictionRule{
			BackendID: "ota", PlanID: plan, AppliedOn: channel.AppliedOnRoomType,
			RoomTypeID: &roomType, Date: day, MinStay: 1,
		}
		require.NoError(t, repo.Save(ctx, first))

		replacement := &channel.RestrictionRule{
			BackendID: "ota", PlanID: plan, AppliedOn: channel.AppliedOnRoomType,
			RoomTypeID: &roomType, Date: day, MinStay: 3, Closed: true,
		}
		require.NoError(t, repo.Save(ctx, replacement))
		assert.Equal(t, first.ID, replacement.ID)

		pending, err := repo.FindPending(ctx, "ota", channel.NewDateRange(day, day))
		require.NoError(t, err)

		var roomRules []*channel.RestrictionRule
		for _, r := range pending {
			if r.AppliedOn == channel.AppliedOnRoomType {
				roomRules = append(roomRules, r)
			}
		}
		require.Len(t, roomRules, 1)
		assert.Equal(t, 3, roomRules[0].MinStay)
		assert.True(t, roomRules[0].Closed)
	})
}

func TestGormRestrictionRepository_MarkPushed(t *testing.T) {
	repo := NewGormRestrictionRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	roomType := uuid.New()
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rule := &channel.RestrictionRule{
		BackendID: "ota", PlanID: uuid.New(), AppliedOn: channel.AppliedOnRoomType,
		RoomTypeID: &roomType, Date: day, ClosedArrival: true,
	}
	require.NoError(t, repo.Save(ctx, rule))

	pending, err := repo.FindPending(ctx, "ota", channel.NewDateRange(day, day.AddDate(0, 0, 7)))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	read := pending[0].PushedRow()
	flagged, err := repo.MarkPushed(ctx, []channel.PushedRow{read})
	require.NoError(t, err)
	assert.Equal(t, int64(1), flagged)

	pending, err = repo.FindPending(ctx, "ota", channel.NewDateRange(day, day.AddDate(0, 0, 7)))
	require.NoError(t, err)
	assert.Empty(t, pending)

	// any later write makes it pending again
	rule.MaxStay = 14
	require.NoError(t, repo.Save(ctx, rule))
	pending, err = repo.FindPending(ctx, "ota", channel.NewDateRange(day, day))
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// and an export holding the earlier revision cannot flag it
	flagged, err = repo.MarkPushed(ctx, []channel.PushedRow{read})
	require.NoError(t, err)
	assert.Zero(t, flagged)
	pending, err = repo.FindPending(ctx, "ota", channel.NewDateRange(day, day))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 14, pending[0].MaxStay)
}
