// Package scheduler runs the periodic export planning on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExportRunner plans delayed exports for every configured backend
type ExportRunner interface {
	RunAll(ctx context.Context) error
}

// QueueStats reports how many tasks sit in each status
type QueueStats interface {
	CountByStatus(ctx context.Context) (map[shared.TaskStatus]int64, error)
}

// DepthRecorder receives queue depth samples
type DepthRecorder interface {
	RecordQueueDepth(ctx context.Context, counts map[shared.TaskStatus]int64)
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// ExportSchedule is a standard five-field cron expression
	ExportSchedule string
	// StatsSchedule controls queue depth sampling; empty disables it
	StatsSchedule string
	// JobTimeout bounds a single run
	JobTimeout time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		ExportSchedule: "*/5 * * * *",
		StatsSchedule:  "@every 1m",
		JobTimeout:     5 * time.Minute,
	}
}

// CronTrigger fires export planning and queue sampling on schedule
type CronTrigger struct {
	config  CronTriggerConfig
	exports ExportRunner
	stats   QueueStats
	depth   DepthRecorder
	logger  *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewCronTrigger validates the schedules and creates a trigger
func NewCronTrigger(config CronTriggerConfig, exports ExportRunner, logger *zap.Logger) (*CronTrigger, error) {
	defaults := DefaultCronTriggerConfig()
	if config.ExportSchedule == "" {
		config.ExportSchedule = defaults.ExportSchedule
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if _, err := cron.ParseStandard(config.ExportSchedule); err != nil {
		return nil, fmt.Errorf("%w: export schedule %q: %v", ErrInvalidConfig, config.ExportSchedule, err)
	}
	if config.StatsSchedule != "" {
		if _, err := cron.ParseStandard(config.StatsSchedule); err != nil {
			return nil, fmt.Errorf("%w: stats schedule %q: %v", ErrInvalidConfig, config.StatsSchedule, err)
		}
	}
	return &CronTrigger{
		config:  config,
		exports: exports,
		logger:  logger.Named("scheduler"),
	}, nil
}

// WithQueueStats enables periodic queue depth sampling
func (c *CronTrigger) WithQueueStats(stats QueueStats, depth DepthRecorder) *CronTrigger {
	c.stats = stats
	c.depth = depth
	return c
}

// Start registers the jobs and starts the cron runner
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := cronLogger{sugar: c.logger.Sugar()}
	runner := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.baseCtx, c.cancel = context.WithCancel(ctx)

	if _, err := runner.AddFunc(c.config.ExportSchedule, func() { _ = c.RunExports(c.baseCtx) }); err != nil {
		c.cancel()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.config.StatsSchedule != "" && c.stats != nil && c.depth != nil {
		if _, err := runner.AddFunc(c.config.StatsSchedule, func() { c.SampleQueue(c.baseCtx) }); err != nil {
			c.cancel()
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	runner.Start()
	c.cron = runner
	c.logger.Info("Cron trigger started",
		zap.String("export_schedule", c.config.ExportSchedule),
		zap.String("stats_schedule", c.config.StatsSchedule),
	)
	return nil
}

// Stop stops scheduling and waits for running jobs
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()
	if runner == nil {
		return nil
	}

	done := runner.Stop()
	c.cancel()
	select {
	case <-done.Done():
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the cron runner is active
func (c *CronTrigger) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cron != nil
}

// RunExports runs one export planning pass
func (c *CronTrigger) RunExports(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := c.exports.RunAll(ctx); err != nil {
		c.logger.Error("Scheduled export planning failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	c.logger.Info("Scheduled export planning completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// SampleQueue records the current queue depth
func (c *CronTrigger) SampleQueue(ctx context.Context) {
	if c.stats == nil || c.depth == nil {
		return
	}
	counts, err := c.stats.CountByStatus(ctx)
	if err != nil {
		c.logger.Warn("Failed to sample queue depth", zap.Error(err))
		return
	}
	c.depth.RecordQueueDepth(ctx, counts)
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
