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

func TestGormIssueRepository(t *testing.T) {
	repo := NewGormIssueRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	newIssue := func(backend string, section channel.Section, minutes int) *channel.Issue {
		issue := channel.NewIssue(backend, section, "export failed")
		issue.CreatedAt = base.Add(time.Duration(minutes) * time.Minute)
		return issue
	}

	first := newIssue("ota", channel.SectionAvailability, 0).
		WithDates(channel.NewDateRange(base, base.AddDate(0, 0, 2))).
		WithError(channel.NewChannelError("rejected", `{"error":"closed"}`, nil))
	second := newIssue("ota", channel.SectionAvailability, 1)
	third := newIssue("ota", channel.SectionReservation, 2).WithExternal("R-1")
	other := newIssue("direct", channel.SectionPricelist, 3)
	for _, issue := range []*channel.Issue{first, second, third, other} {
		require.NoError(t, repo.Create(ctx, issue))
	}

	t.Run("find by id keeps the diagnostic", func(t *testing.T) {
		found, err := repo.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, `{"error":"closed"}`, found.ChannelMessage)
		require.NotNil(t, found.DateFrom)
		require.NotNil(t, found.DateTo)
		assert.True(t, found.DateTo.Equal(channel.Day(base.AddDate(0, 0, 2))))
		assert.True(t, found.IsOpen())
	})

	t.Run("find unknown", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, channel.ErrNotFound)
	})

	t.Run("list newest first with filter", func(t *testing.T) {
		issues, total, err := repo.List(ctx, channel.IssueFilter{BackendID: "ota", Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, issues, 2)
		assert.Equal(t, third.ID, issues[0].ID)
		assert.Equal(t, second.ID, issues[1].ID)

		issues, total, err = repo.List(ctx, channel.IssueFilter{Section: channel.SectionPricelist})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, issues, 1)
		assert.Equal(t, other.ID, issues[0].ID)
	})

	t.Run("acknowledge is idempotent", func(t *testing.T) {
		at := base.Add(time.Hour)
		require.NoError(t, repo.Acknowledge(ctx, second.ID, at))
		require.NoError(t, repo.Acknowledge(ctx, second.ID, at.Add(time.Hour)))

		found, err := repo.FindByID(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, found.AcknowledgedAt)
		assert.True(t, found.AcknowledgedAt.Equal(at))

		assert.ErrorIs(t, repo.Acknowledge(ctx, uuid.New(), at), channel.ErrNotFound)
	})

	t.Run("open counts per section", func(t *testing.T) {
		counts, err := repo.CountOpenBySection(ctx, "ota")
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[channel.SectionAvailability])
		assert.Equal(t, int64(1), counts[channel.SectionReservation])
		assert.Zero(t, counts[channel.SectionPricelist])

		all, err := repo.CountOpenBySection(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), all[channel.SectionPricelist])

		issues, total, err := repo.List(ctx, channel.IssueFilter{BackendID: "ota", OpenOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, issues, 2)
	})
}
