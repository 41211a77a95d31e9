package channelsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ImportPayload is the task payload of an import_record job. Payload is the
// raw remote record; when empty the importer reads it from the backend.
type ImportPayload struct {
	BackendID  string             `json:"backend_id"`
	EntityType channel.EntityType `json:"entity_type"`
	ExternalID string             `json:"external_id"`
	Payload    channel.Record     `json:"payload,omitempty"`
}

// RecordFailure is one record a batch could not process
type RecordFailure struct {
	ID  string
	Err error
}

// BatchResult summarizes a batch run
type BatchResult struct {
	Total     int
	Processed int
	Scheduled int
	Failed    int
	Failures  []RecordFailure
}

func (r *BatchResult) fail(id string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, RecordFailure{ID: id, Err: err})
}

// RecordImporter imports one external record into the PMS
type RecordImporter struct {
	registry *Registry
	bindings channel.BindingRepository
	store    channel.EntityStore
	issues   *IssueService
	metrics  Metrics
	logger   *zap.Logger
}

// NewRecordImporter creates a new RecordImporter
func NewRecordImporter(
	registry *Registry,
	bindings channel.BindingRepository,
	store channel.EntityStore,
	issues *IssueService,
	metrics Metrics,
	logger *zap.Logger,
) *RecordImporter {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &RecordImporter{
		registry: registry,
		bindings: bindings,
		store:    store,
		issues:   issues,
		metrics:  metrics,
		logger:   logger.Named("importer"),
	}
}

// Import creates or updates the internal record bound to externalID. A nil
// payload is read from the backend first. Records referenced by the payload
// are imported before it. Terminal failures are stored as issues.
func (im *RecordImporter) Import(ctx context.Context, backendID string, entityType channel.EntityType, externalID string, payload channel.Record) (*channel.InternalRecord, error) {
	if externalID == "" {
		externalID = payload.ID()
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "channelsync", "import",
		telemetry.WithAttribute("backend.id", backendID),
		telemetry.WithAttribute("entity.type", string(entityType)),
		telemetry.WithAttribute("external.id", externalID),
	)
	defer span.End()

	record, err := im.importRecord(ctx, backendID, entityType, externalID, payload, make(map[channel.ExternalRef]bool))
	im.metrics.RecordSync(ctx, backendID, entityType, channel.DirectionImport, err)
	if err != nil {
		telemetry.RecordError(span, err)
		im.logger.Warn("Import failed",
			zap.String("backend_id", backendID),
			zap.String("entity_type", string(entityType)),
			zap.String("external_id", externalID),
			zap.Bool("retryable", channel.IsRetryable(err)),
			zap.Error(err),
		)
		issue := channel.NewIssue(backendID, entityType.Section(),
			fmt.Sprintf("import of %s %s failed: %v", entityType, externalID, err)).
			WithExternal(externalID)
		return nil, im.issues.report(ctx, issue, err)
	}

	im.logger.Debug("Record imported",
		zap.String("backend_id", backendID),
		zap.String("entity_type", string(entityType)),
		zap.String("external_id", externalID),
		zap.String("internal_id", record.ID.String()),
	)
	return record, nil
}

// importRecord runs the import unit, once more when a concurrent first
// import won the race for the binding.
func (im *RecordImporter) importRecord(ctx context.Context, backendID string, entityType channel.EntityType, externalID string, payload channel.Record, visiting map[channel.ExternalRef]bool) (*channel.InternalRecord, error) {
	record, err := im.importOnce(ctx, backendID, entityType, externalID, payload, visiting)
	if errors.Is(err, channel.ErrDuplicateBinding) {
		im.logger.Debug("Binding created concurrently, retrying import",
			zap.String("backend_id", backendID),
			zap.String("entity_type", string(entityType)),
			zap.String("external_id", externalID),
		)
		record, err = im.importOnce(ctx, backendID, entityType, externalID, payload, visiting)
	}
	return record, err
}

func (im *RecordImporter) importOnce(ctx context.Context, backendID string, entityType channel.EntityType, externalID string, payload channel.Record, visiting map[channel.ExternalRef]bool) (*channel.InternalRecord, error) {
	backend, adapter, err := im.registry.adapter(backendID, entityType)
	if err != nil {
		return nil, err
	}
	pipeline, err := im.registry.Pipeline(entityType)
	if err != nil {
		return nil, err
	}
	if pipeline.ImportMapper == nil {
		return nil, fmt.Errorf("%w: %s has no import mapping", channel.ErrEntityNotRegistered, entityType)
	}

	if externalID == "" {
		externalID = payload.ID()
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: %s record without id", channel.ErrInvalidInput, entityType)
	}
	if len(payload) == 0 {
		if payload, err = adapter.Read(ctx, externalID); err != nil {
			return nil, err
		}
	}

	ref := channel.ExternalRef{EntityType: entityType, ID: externalID}
	visiting[ref] = true
	defer delete(visiting, ref)

	resolver := NewReferenceResolver(backendID, im.bindings)
	src := channel.Values(payload)
	if err := im.ensureDependencies(ctx, backendID, pipeline.ImportMapper, src, resolver, visiting); err != nil {
		return nil, err
	}

	existing, err := im.boundRecord(ctx, backendID, entityType, externalID)
	if err != nil {
		return nil, err
	}

	var mapped channel.Values
	if existing == nil {
		mapped, err = pipeline.ImportMapper.Map(ctx, src, channel.MapOptions{Create: true, Resolver: resolver})
		if err != nil {
			return nil, err
		}
		existing, err = im.matchCandidate(ctx, backend, entityType, mapped.String(channel.FieldCode))
		if err != nil {
			return nil, err
		}
	}
	if existing != nil {
		mapped, err = pipeline.ImportMapper.Map(ctx, src, channel.MapOptions{Existing: existing, Resolver: resolver})
		if err != nil {
			return nil, err
		}
	}

	var record *channel.InternalRecord
	created := existing == nil
	if created {
		record, err = im.store.Create(ctx, entityType, backend.Scope(), mapped)
	} else {
		record, err = im.store.Update(ctx, entityType, existing.ID, mapped)
	}
	if err != nil {
		return nil, err
	}

	if _, err := im.bindings.Upsert(ctx, backendID, entityType, record.ID, externalID, channel.DirectionImport); err != nil {
		if created && errors.Is(err, channel.ErrDuplicateBinding) {
			if delErr := im.store.Delete(ctx, entityType, record.ID); delErr != nil {
				im.logger.Error("Failed to remove orphan record",
					zap.String("entity_type", string(entityType)),
					zap.String("internal_id", record.ID.String()),
					zap.Error(delErr),
				)
			}
		}
		return nil, err
	}
	return record, nil
}

// ensureDependencies imports the unbound records src refers to. References
// already being imported up the stack are skipped; mapping then reports
// them as missing.
func (im *RecordImporter) ensureDependencies(ctx context.Context, backendID string, mapper *channel.Mapper, src channel.Values, resolver channel.ReferenceResolver, visiting map[channel.ExternalRef]bool) error {
	for _, ref := range mapper.References(src) {
		if visiting[ref] {
			continue
		}
		_, bound, err := resolver.InternalID(ctx, ref.EntityType, ref.ID)
		if err != nil {
			return err
		}
		if bound {
			continue
		}
		if p, err := im.registry.Pipeline(ref.EntityType); err != nil || p.ImportMapper == nil {
			continue
		}
		if _, err := im.importRecord(ctx, backendID, ref.EntityType, ref.ID, nil, visiting); err != nil {
			if channel.IsRetryable(err) {
				return err
			}
			return fmt.Errorf("%w: %s %s: %v", channel.ErrMissingDependency, ref.EntityType, ref.ID, err)
		}
	}
	return nil
}

// boundRecord returns the record bound to externalID, nil when unbound. A
// binding whose record was deleted is dropped.
func (im *RecordImporter) boundRecord(ctx context.Context, backendID string, entityType channel.EntityType, externalID string) (*channel.InternalRecord, error) {
	binding, err := im.bindings.FindByExternal(ctx, backendID, entityType, externalID)
	if errors.Is(err, channel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record, err := im.store.Get(ctx, entityType, binding.InternalID)
	if errors.Is(err, channel.ErrNotFound) {
		if _, err := im.bindings.DeleteByInternal(ctx, entityType, binding.InternalID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return record, err
}

// matchCandidate looks for an unbound internal record with the same code.
// Nothing matching means the record is new.
func (im *RecordImporter) matchCandidate(ctx context.Context, backend channel.Backend, entityType channel.EntityType, code string) (*channel.InternalRecord, error) {
	if code == "" {
		return nil, nil
	}
	found, err := im.store.FindByCode(ctx, entityType, code)
	if err != nil {
		return nil, err
	}
	candidates := make([]*channel.InternalRecord, 0, len(found))
	for _, c := range found {
		_, err := im.bindings.FindByInternal(ctx, backend.ID, entityType, c.ID)
		if errors.Is(err, channel.ErrNotFound) {
			candidates = append(candidates, c)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	match, err := ResolveAmbiguous(candidates, backend.Scope())
	if errors.Is(err, channel.ErrNoMatch) {
		return nil, nil
	}
	return match, err
}

// BatchImporter imports every remote record matching a domain
type BatchImporter struct {
	registry  *Registry
	importer  *RecordImporter
	scheduler Scheduler
	issues    *IssueService
	logger    *zap.Logger
}

// NewBatchImporter creates a new BatchImporter. scheduler may be nil when
// only ModeDirect is used.
func NewBatchImporter(registry *Registry, importer *RecordImporter, scheduler Scheduler, issues *IssueService, logger *zap.Logger) *BatchImporter {
	return &BatchImporter{
		registry:  registry,
		importer:  importer,
		scheduler: scheduler,
		issues:    issues,
		logger:    logger.Named("batch_importer"),
	}
}

// Run searches the backend and imports each result inline or through the
// queue. A failed search aborts the run; record failures do not.
func (b *BatchImporter) Run(ctx context.Context, backendID string, entityType channel.EntityType, domain channel.Domain, mode channel.Mode) (*BatchResult, error) {
	if mode == channel.ModeDelayed && b.scheduler == nil {
		return nil, fmt.Errorf("%w: delayed import without a scheduler", channel.ErrInvalidInput)
	}
	_, adapter, err := b.registry.adapter(backendID, entityType)
	if err != nil {
		return nil, err
	}

	records, err := adapter.SearchRead(ctx, domain)
	if err != nil {
		issue := channel.NewIssue(backendID, entityType.Section(),
			fmt.Sprintf("search of %s failed: %v", entityType, err)).WithError(err)
		if reportErr := b.issues.Report(ctx, issue); reportErr != nil {
			b.logger.Error("Failed to report search failure", zap.Error(reportErr))
		}
		return nil, err
	}

	result := &BatchResult{Total: len(records)}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id := record.ID()
		if mode == channel.ModeDelayed {
			payload := ImportPayload{BackendID: backendID, EntityType: entityType, ExternalID: id, Payload: record}
			if _, err := b.scheduler.Schedule(ctx, TaskImportRecord, payload, 0, shared.PriorityNormal); err != nil {
				result.fail(id, err)
				continue
			}
			result.Scheduled++
			continue
		}
		if _, err := b.importer.Import(ctx, backendID, entityType, id, record); err != nil {
			result.fail(id, err)
			continue
		}
		result.Processed++
	}

	b.logger.Info("Batch import finished",
		zap.String("backend_id", backendID),
		zap.String("entity_type", string(entityType)),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
