package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeliveryStore_MarkProcessed(t *testing.T) {
	store := NewMemoryDeliveryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	t.Run("first delivery is new", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "booking:reservation:1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("redelivery is rejected", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "booking:reservation:1", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		seen, err := store.IsProcessed(ctx, "booking:reservation:1")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("expired key is accepted again", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		isNew, err := store.MarkProcessed(ctx, "booking:reservation:1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("forgotten key is accepted again", func(t *testing.T) {
		require.NoError(t, store.Forget(ctx, "booking:reservation:1"))
		seen, err := store.IsProcessed(ctx, "booking:reservation:1")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}

func TestMemoryDeliveryStore_Sweep(t *testing.T) {
	store := NewMemoryDeliveryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, _ = store.MarkProcessed(ctx, "short", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	require.Equal(t, 2, store.Len())

	now = now.Add(10 * time.Minute)
	store.sweep()
	assert.Equal(t, 1, store.Len())
}

func TestMemoryDeliveryStore_CloseTwice(t *testing.T) {
	store := NewMemoryDeliveryStore(time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
