package channelsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ExportPayload is the task payload of an export_record job. The record is
// re-read when the job runs.
type ExportPayload struct {
	BackendID  string             `json:"backend_id"`
	EntityType channel.EntityType `json:"entity_type"`
	InternalID uuid.UUID          `json:"internal_id"`
	Changed    []string           `json:"changed,omitempty"`
}

// RecordExporter pushes one internal record to a backend
type RecordExporter struct {
	registry *Registry
	bindings channel.BindingRepository
	store    channel.EntityStore
	issues   *IssueService
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecordExporter creates a new RecordExporter
func NewRecordExporter(
	registry *Registry,
	bindings channel.BindingRepository,
	store channel.EntityStore,
	issues *IssueService,
	metrics Metrics,
	logger *zap.Logger,
) *RecordExporter {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &RecordExporter{
		registry: registry,
		bindings: bindings,
		store:    store,
		issues:   issues,
		metrics:  metrics,
		logger:   logger.Named("exporter"),
		now:      time.Now,
	}
}

// Export creates the record remotely when it has no external id yet and
// writes it otherwise. changed restricts an update to the rules affected by
// those fields; nil sends every mapped field. A deleted record or a binding
// already covering the latest change makes the call a no-op. Every failure
// raises an issue; retryable ones still return a retryable error.
func (ex *RecordExporter) Export(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID, changed []string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "channelsync", "export",
		telemetry.WithAttribute("backend.id", backendID),
		telemetry.WithAttribute("entity.type", string(entityType)),
		telemetry.WithAttribute("internal.id", internalID.String()),
	)
	defer span.End()

	externalID, err := ex.export(ctx, backendID, entityType, internalID, changed)
	if errors.Is(err, errAlreadySynced) {
		return nil
	}
	ex.metrics.RecordSync(ctx, backendID, entityType, channel.DirectionExport, err)
	if err != nil {
		telemetry.RecordError(span, err)
		ex.logger.Warn("Export failed",
			zap.String("backend_id", backendID),
			zap.String("entity_type", string(entityType)),
			zap.String("internal_id", internalID.String()),
			zap.Bool("retryable", channel.IsRetryable(err)),
			zap.Error(err),
		)
		issue := channel.NewIssue(backendID, entityType.Section(),
			fmt.Sprintf("export of %s %s failed: %v", entityType, internalID, err)).
			WithInternal(internalID).
			WithExternal(externalID)
		return ex.issues.reportAttempt(ctx, issue, err)
	}

	ex.logger.Debug("Record exported",
		zap.String("backend_id", backendID),
		zap.String("entity_type", string(entityType)),
		zap.String("internal_id", internalID.String()),
		zap.String("external_id", externalID),
	)
	return nil
}

// errAlreadySynced ends an export whose work was done by a later job
var errAlreadySynced = errors.New("channelsync: already synced")

func (ex *RecordExporter) export(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID, changed []string) (string, error) {
	_, adapter, err := ex.registry.adapter(backendID, entityType)
	if err != nil {
		return "", err
	}
	pipeline, err := ex.registry.Pipeline(entityType)
	if err != nil {
		return "", err
	}
	if pipeline.ExportMapper == nil {
		return "", fmt.Errorf("%w: %s has no export mapping", channel.ErrEntityNotRegistered, entityType)
	}

	readAt := ex.now()
	record, err := ex.store.Get(ctx, entityType, internalID)
	if errors.Is(err, channel.ErrNotFound) {
		return "", errAlreadySynced
	}
	if err != nil {
		return "", err
	}

	binding, err := ex.bindings.FindByInternal(ctx, backendID, entityType, internalID)
	if errors.Is(err, channel.ErrNotFound) {
		binding = nil
	} else if err != nil {
		return "", err
	}
	if binding != nil && binding.IsExportSynced(record.ModifiedAt) {
		return binding.ExternalID, errAlreadySynced
	}

	create := binding == nil || !binding.HasExternalID()
	opts := channel.MapOptions{
		Create:   create,
		Existing: record,
		Resolver: NewReferenceResolver(backendID, ex.bindings),
	}
	if !create {
		opts.Changed = changed
	}
	mapped, err := pipeline.ExportMapper.Map(ctx, exportSource(record), opts)
	if err != nil {
		return externalIDOf(binding), err
	}

	externalID := externalIDOf(binding)
	if create {
		if externalID, err = adapter.Create(ctx, channel.Record(mapped)); err != nil {
			return "", err
		}
	} else if len(mapped) > 0 {
		ok, err := adapter.Write(ctx, externalID, channel.Record(mapped))
		if err != nil {
			return externalID, err
		}
		if !ok {
			return externalID, channel.NewChannelError("write not acknowledged", "", nil)
		}
	}

	// Stamped with the read time: an edit made during the push stays newer
	// than the export and is picked up by the next batch.
	if _, err := ex.bindings.UpsertAt(ctx, backendID, entityType, internalID, externalID, channel.DirectionExport, readAt); err != nil {
		return externalID, err
	}
	return externalID, nil
}

// exportSource exposes the record id to the mapping rules next to its fields
func exportSource(record *channel.InternalRecord) channel.Values {
	src := record.Fields.Clone()
	if _, ok := src["id"]; !ok {
		src["id"] = record.ID.String()
	}
	return src
}

func externalIDOf(binding *channel.Binding) string {
	if binding == nil {
		return ""
	}
	return binding.ExternalID
}

// BatchExporter exports every internal record of a type whose binding is
// missing or stale
type BatchExporter struct {
	registry  *Registry
	exporter  *RecordExporter
	bindings  channel.BindingReader
	store     channel.EntityStore
	scheduler Scheduler
	logger    *zap.Logger
}

// NewBatchExporter creates a new BatchExporter. scheduler may be nil when
// only ModeDirect is used.
func NewBatchExporter(
	registry *Registry,
	exporter *RecordExporter,
	bindings channel.BindingReader,
	store channel.EntityStore,
	scheduler Scheduler,
	logger *zap.Logger,
) *BatchExporter {
	return &BatchExporter{
		registry:  registry,
		exporter:  exporter,
		bindings:  bindings,
		store:     store,
		scheduler: scheduler,
		logger:    logger.Named("batch_exporter"),
	}
}

// Run selects the records matching domain that need export and exports them
// inline or through the queue. The domain is evaluated over the record
// fields plus "id".
func (b *BatchExporter) Run(ctx context.Context, backendID string, entityType channel.EntityType, domain channel.Domain, mode channel.Mode) (*BatchResult, error) {
	if entityType.IsTimeSeries() {
		return nil, fmt.Errorf("%w: %s is exported as a time series", channel.ErrInvalidInput, entityType)
	}
	if mode == channel.ModeDelayed && b.scheduler == nil {
		return nil, fmt.Errorf("%w: delayed export without a scheduler", channel.ErrInvalidInput)
	}
	if _, err := b.registry.Connector(backendID); err != nil {
		return nil, err
	}

	records, err := b.store.List(ctx, entityType)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*channel.InternalRecord, len(records))
	rows := make([]channel.Record, 0, len(records))
	for _, r := range records {
		byID[r.ID.String()] = r
		rows = append(rows, channel.Record(exportSource(r)))
	}
	matched, err := domain.Filter(rows)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, row := range matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		record := byID[row.String("id")]
		if record == nil {
			continue
		}
		stale, err := b.needsExport(ctx, backendID, entityType, record)
		if err != nil {
			result.Total++
			result.fail(record.ID.String(), err)
			continue
		}
		if !stale {
			continue
		}
		result.Total++

		if mode == channel.ModeDelayed {
			payload := ExportPayload{BackendID: backendID, EntityType: entityType, InternalID: record.ID}
			if _, err := b.scheduler.Schedule(ctx, TaskExportRecord, payload, 0, shared.PriorityNormal); err != nil {
				result.fail(record.ID.String(), err)
				continue
			}
			result.Scheduled++
			continue
		}
		if err := b.exporter.Export(ctx, backendID, entityType, record.ID, nil); err != nil {
			result.fail(record.ID.String(), err)
			continue
		}
		result.Processed++
	}

	b.logger.Info("Batch export finished",
		zap.String("backend_id", backendID),
		zap.String("entity_type", string(entityType)),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (b *BatchExporter) needsExport(ctx context.Context, backendID string, entityType channel.EntityType, record *channel.InternalRecord) (bool, error) {
	binding, err := b.bindings.FindByInternal(ctx, backendID, entityType, record.ID)
	if errors.Is(err, channel.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !binding.IsExportSynced(record.ModifiedAt), nil
}
