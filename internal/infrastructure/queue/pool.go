package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/logger"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrNoHandler is returned for tasks of an unregistered kind
var ErrNoHandler = errors.New("queue: no handler registered for task kind")

// Handler executes one task kind
type Handler interface {
	Handle(ctx context.Context, task *shared.Task) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, task *shared.Task) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, task *shared.Task) error {
	return f(ctx, task)
}

// DeadLetterFunc is called once a task is moved to DEAD
type DeadLetterFunc func(ctx context.Context, task *shared.Task, err error)

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	Workers          int
	PollInterval     time.Duration
	BatchSize        int
	JobTimeout       time.Duration
	StaleAfter       time.Duration
	Backoff          shared.BackoffPolicy
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultPoolConfig returns default configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:          4,
		PollInterval:     2 * time.Second,
		BatchSize:        50,
		JobTimeout:       2 * time.Minute,
		StaleAfter:       15 * time.Minute,
		Backoff:          shared.DefaultBackoffPolicy(),
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Pool claims due tasks and runs them on a fixed set of workers
type Pool struct {
	repo      shared.TaskRepository
	config    PoolConfig
	logger    *zap.Logger
	retryable func(error) bool
	onDead    DeadLetterFunc

	mu       sync.RWMutex
	handlers map[string]Handler

	tasks  chan *shared.Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a new worker pool
func NewPool(repo shared.TaskRepository, config PoolConfig, logger *zap.Logger) *Pool {
	defaults := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	return &Pool{
		repo:      repo,
		config:    config,
		logger:    logger.Named("queue"),
		retryable: channel.IsRetryable,
		handlers:  make(map[string]Handler),
	}
}

// Register binds a handler to a task kind
func (p *Pool) Register(kind string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

// OnDead sets the callback invoked when a task goes DEAD
func (p *Pool) OnDead(fn DeadLetterFunc) {
	p.onDead = fn
}

// Start starts the poll loop, the workers and the maintenance loop
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.tasks = make(chan *shared.Task, p.config.Workers)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.wg.Add(1)
	go p.maintenanceLoop(ctx)

	p.logger.Info("task pool started",
		zap.Int("workers", p.config.Workers),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("job_timeout", p.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the pool, waiting for running tasks
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("task pool stop timed out")
		return ctx.Err()
	}
}

// ProcessDue claims and runs due tasks inline until none is left or limit
// tasks ran. It returns the number of executed tasks.
func (p *Pool) ProcessDue(ctx context.Context, limit int) (int, error) {
	ran := 0
	for ran < limit {
		claimed, err := p.repo.ClaimDue(ctx, time.Now(), min(p.config.BatchSize, limit-ran))
		if err != nil {
			return ran, err
		}
		if len(claimed) == 0 {
			return ran, nil
		}
		for _, task := range claimed {
			p.execute(ctx, task)
			ran++
		}
	}
	return ran, nil
}

func (p *Pool) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.tasks)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll claims as many tasks as there are free worker slots
func (p *Pool) poll(ctx context.Context) {
	free := cap(p.tasks) - len(p.tasks)
	if free <= 0 {
		return
	}
	claimed, err := p.repo.ClaimDue(ctx, time.Now(), min(free, p.config.BatchSize))
	if err != nil {
		p.logger.Error("failed to claim due tasks", zap.Error(err))
		return
	}
	for _, task := range claimed {
		select {
		case p.tasks <- task:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.logger.Debug("task picked", zap.Int("worker_id", workerID), zap.String("task_id", task.ID.String()))
		p.execute(ctx, task)
	}
}

// execute runs one claimed task and records the outcome
func (p *Pool) execute(ctx context.Context, task *shared.Task) {
	ctx = logger.WithTaskID(ctx, task.ID.String())
	log := logger.Enrich(ctx, p.logger).With(zap.String("kind", task.Kind))

	p.mu.RLock()
	handler, ok := p.handlers[task.Kind]
	p.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrNoHandler, task.Kind)
	} else {
		err = p.run(ctx, handler, task)
	}

	// Record the outcome even when the pool is stopping
	saveCtx := context.WithoutCancel(ctx)

	if err == nil {
		task.MarkDone()
		if updateErr := p.repo.Update(saveCtx, task); updateErr != nil {
			log.Error("failed to mark task done", zap.Error(updateErr))
		}
		log.Debug("task done")
		return
	}

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		task.Release()
		if updateErr := p.repo.Update(saveCtx, task); updateErr != nil {
			log.Error("failed to release interrupted task", zap.Error(updateErr))
		}
		return
	}

	task.MarkFailed(err.Error(), ok && p.retryable(err), p.config.Backoff)
	if updateErr := p.repo.Update(saveCtx, task); updateErr != nil {
		log.Error("failed to record task failure", zap.Error(updateErr))
	}

	if task.IsDead() {
		log.Warn("task moved to dead letter",
			zap.Int("retry_count", task.RetryCount),
			zap.String("last_error", task.LastError),
		)
		if p.onDead != nil {
			p.onDead(saveCtx, task, err)
		}
		return
	}
	log.Info("task failed, retry scheduled",
		zap.Int("retry_count", task.RetryCount),
		zap.Time("run_at", task.RunAt),
		zap.Error(err),
	)
}

// run calls the handler with the per-task timeout under the task kind's
// profile label, turning panics into errors
func (p *Pool) run(ctx context.Context, handler Handler, task *shared.Task) (err error) {
	taskCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: task panicked: %v", r)
		}
	}()
	telemetry.WithProfilingLabels(taskCtx, telemetry.SyncLabels("", task.Kind), func(ctx context.Context) {
		err = handler.Handle(ctx, task)
	})
	return err
}

func (p *Pool) maintenanceLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.maintain(ctx)
		}
	}
}

// maintain releases stale claims and removes old completed tasks
func (p *Pool) maintain(ctx context.Context) {
	if p.config.StaleAfter > 0 {
		released, err := p.repo.ReleaseStale(ctx, time.Now().Add(-p.config.StaleAfter))
		if err != nil {
			p.logger.Error("failed to release stale tasks", zap.Error(err))
		} else if released > 0 {
			p.logger.Warn("released stale tasks", zap.Int64("released", released))
		}
	}

	if !p.config.CleanupEnabled || p.config.CleanupRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old tasks", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old tasks",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
