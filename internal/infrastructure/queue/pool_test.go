package queue

import (
	"context"
	"errors"
	"runtime/pprof"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T) (*Pool, *Queue, *GormTaskRepository) {
	t.Helper()
	repo := NewGormTaskRepository(testutil.NewSQLiteDB(t))
	cfg := DefaultPoolConfig()
	cfg.Backoff = shared.BackoffPolicy{Base: time.Hour, Max: 2 * time.Hour}
	return NewPool(repo, cfg, zap.NewNop()), NewQueue(repo, 3), repo
}

func TestPool_ProcessDue(t *testing.T) {
	ctx := context.Background()

	t.Run("successful task is done", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		var calls atomic.Int32
		pool.Register("export_availability", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			calls.Add(1)
			return nil
		}))

		handle, err := q.Schedule(ctx, "export_availability", map[string]string{"backend_id": "ota"}, 0, shared.PriorityNormal)
		require.NoError(t, err)

		ran, err := pool.ProcessDue(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, ran)
		assert.Equal(t, int32(1), calls.Load())

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusDone, task.Status)
		assert.NotNil(t, task.ProcessedAt)
	})

	t.Run("handler runs under the task kind profile label", func(t *testing.T) {
		pool, q, _ := newTestPool(t)
		var operation string
		pool.Register("export_restrictions", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			operation, _ = pprof.Label(ctx, "operation")
			return nil
		}))

		_, err := q.Schedule(ctx, "export_restrictions", nil, 0, shared.PriorityNormal)
		require.NoError(t, err)

		_, err = pool.ProcessDue(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, "export_restrictions", operation)
	})

	t.Run("transient failure is retried later", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		pool.Register("export_availability", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			return channel.NewChannelError("gateway timeout", "", nil)
		}))

		handle, err := q.Schedule(ctx, "export_availability", nil, 0, shared.PriorityNormal)
		require.NoError(t, err)

		ran, err := pool.ProcessDue(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, ran)

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusFailed, task.Status)
		assert.Equal(t, 1, task.RetryCount)
		assert.True(t, task.RunAt.After(time.Now().Add(30*time.Minute)))
	})

	t.Run("terminal failure goes dead and notifies", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		pool.Register("import_reservation", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			return channel.ErrMissingDependency
		}))
		var deadErr error
		pool.OnDead(func(ctx context.Context, task *shared.Task, err error) {
			deadErr = err
		})

		handle, err := q.Schedule(ctx, "import_reservation", nil, 0, shared.PriorityHigh)
		require.NoError(t, err)

		_, err = pool.ProcessDue(ctx, 10)
		require.NoError(t, err)

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusDead, task.Status)
		assert.ErrorIs(t, deadErr, channel.ErrMissingDependency)
	})

	t.Run("unknown kind goes dead", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		var deadErr error
		pool.OnDead(func(ctx context.Context, task *shared.Task, err error) {
			deadErr = err
		})

		handle, err := q.Schedule(ctx, "unknown_kind", nil, 0, shared.PriorityNormal)
		require.NoError(t, err)

		_, err = pool.ProcessDue(ctx, 10)
		require.NoError(t, err)

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusDead, task.Status)
		assert.ErrorIs(t, deadErr, ErrNoHandler)
	})

	t.Run("panicking handler is recorded as failure", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		pool.Register("export_restriction", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			panic("nil map")
		}))

		handle, err := q.Schedule(ctx, "export_restriction", nil, 0, shared.PriorityNormal)
		require.NoError(t, err)

		_, err = pool.ProcessDue(ctx, 10)
		require.NoError(t, err)

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusDead, task.Status)
		assert.Contains(t, task.LastError, "panicked")
	})

	t.Run("retries are exhausted", func(t *testing.T) {
		pool, q, repo := newTestPool(t)
		pool.Register("export_pricelist", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
			return context.DeadlineExceeded
		}))

		handle, err := q.Schedule(ctx, "export_pricelist", nil, 0, shared.PriorityNormal)
		require.NoError(t, err)

		for attempt := 0; attempt < 3; attempt++ {
			task, err := repo.FindByID(ctx, handle.ID)
			require.NoError(t, err)
			task.RunAt = time.Now().Add(-time.Second)
			require.NoError(t, repo.Update(ctx, task))

			_, err = pool.ProcessDue(ctx, 1)
			require.NoError(t, err)
		}

		task, err := repo.FindByID(ctx, handle.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TaskStatusDead, task.Status)
		assert.Equal(t, 3, task.RetryCount)
	})
}

func TestPool_StartStop(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewSQLiteDB(t))
	cfg := DefaultPoolConfig()
	cfg.Workers = 2
	cfg.PollInterval = 10 * time.Millisecond
	pool := NewPool(repo, cfg, zap.NewNop())

	done := make(chan struct{})
	pool.Register("import_listing", HandlerFunc(func(ctx context.Context, task *shared.Task) error {
		close(done)
		return nil
	}))

	ctx := context.Background()
	_, err := NewQueue(repo, 0).Schedule(ctx, "import_listing", nil, 0, shared.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not picked up")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))
}

func TestHandlerFunc(t *testing.T) {
	want := errors.New("boom")
	h := HandlerFunc(func(ctx context.Context, task *shared.Task) error { return want })
	assert.ErrorIs(t, h.Handle(context.Background(), &shared.Task{}), want)
}
