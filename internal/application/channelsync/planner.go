package channelsync

import (
	"context"
	"errors"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultExportWindowDays is the time-series window of a planned export
const DefaultExportWindowDays = 365

// PlanResult summarizes one planned export of a backend
type PlanResult struct {
	BackendID  string
	Records    map[channel.EntityType]*BatchResult
	TimeSeries []shared.TaskHandle
}

// ExportPlanner enqueues the periodic exports of a backend: every record
// whose binding is stale and the pending time-series rows of the window
type ExportPlanner struct {
	registry   *Registry
	batch      *BatchExporter
	scheduler  Scheduler
	windowDays int
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportPlanner creates a new ExportPlanner
func NewExportPlanner(registry *Registry, batch *BatchExporter, scheduler Scheduler, windowDays int, logger *zap.Logger) *ExportPlanner {
	if windowDays <= 0 {
		windowDays = DefaultExportWindowDays
	}
	return &ExportPlanner{
		registry:   registry,
		batch:      batch,
		scheduler:  scheduler,
		windowDays: windowDays,
		logger:     logger.Named("planner"),
		now:        time.Now,
	}
}

// RunExports plans the exports of one backend. Entity types the backend has
// no adapter for are skipped.
func (p *ExportPlanner) RunExports(ctx context.Context, backendID string) (*PlanResult, error) {
	conn, err := p.registry.Connector(backendID)
	if err != nil {
		return nil, err
	}
	result := &PlanResult{BackendID: backendID, Records: make(map[channel.EntityType]*BatchResult)}

	for _, pipeline := range p.registry.Pipelines() {
		if pipeline.ExportMapper == nil || pipeline.EntityType.IsTimeSeries() {
			continue
		}
		if _, err := conn.Adapter(pipeline.EntityType); err != nil {
			continue
		}
		res, err := p.batch.Run(ctx, backendID, pipeline.EntityType, nil, channel.ModeDelayed)
		if err != nil {
			return result, err
		}
		result.Records[pipeline.EntityType] = res
	}

	today := channel.Day(p.now())
	window := channel.DateRange{From: today, To: today.AddDate(0, 0, p.windowDays)}
	for _, t := range []channel.EntityType{channel.EntityAvailability, channel.EntityRestriction, channel.EntityPricelistItem} {
		if _, err := conn.Adapter(t); errors.Is(err, channel.ErrEntityNotRegistered) {
			continue
		} else if err != nil {
			return result, err
		}
		payload := TimeSeriesPayload{
			BackendID:  backendID,
			EntityType: t,
			DateFrom:   window.From.Format(channel.DateLayout),
			DateTo:     window.To.Format(channel.DateLayout),
		}
		handle, err := p.scheduler.Schedule(ctx, TaskExportTimeSeries, payload, 0, shared.PriorityLow)
		if err != nil {
			return result, err
		}
		result.TimeSeries = append(result.TimeSeries, handle)
	}

	p.logger.Info("Exports planned",
		zap.String("backend_id", backendID),
		zap.Int("record_types", len(result.Records)),
		zap.Int("time_series_jobs", len(result.TimeSeries)),
	)
	return result, nil
}

// RunAll plans the exports of every backend, continuing past failures
func (p *ExportPlanner) RunAll(ctx context.Context) error {
	var errs []error
	for _, b := range p.registry.Backends() {
		if _, err := p.RunExports(ctx, b.ID); err != nil {
			p.logger.Error("Export planning failed", zap.String("backend_id", b.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
