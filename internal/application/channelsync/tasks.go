package channelsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"go.uber.org/zap"
)

// TaskHandlers runs the queued sync jobs
type TaskHandlers struct {
	importer   *RecordImporter
	exporter   *RecordExporter
	timeSeries *TimeSeriesExporter
	calendar   *CalendarImporter
	issues     *IssueService
	logger     *zap.Logger
}

// NewTaskHandlers creates the handlers of every sync task kind
func NewTaskHandlers(
	importer *RecordImporter,
	exporter *RecordExporter,
	timeSeries *TimeSeriesExporter,
	calendar *CalendarImporter,
	issues *IssueService,
	logger *zap.Logger,
) *TaskHandlers {
	return &TaskHandlers{
		importer:   importer,
		exporter:   exporter,
		timeSeries: timeSeries,
		calendar:   calendar,
		issues:     issues,
		logger:     logger.Named("tasks"),
	}
}

// Handlers returns the handler of each task kind
func (h *TaskHandlers) Handlers() map[string]func(context.Context, *shared.Task) error {
	return map[string]func(context.Context, *shared.Task) error{
		TaskImportRecord:     h.HandleImportRecord,
		TaskExportRecord:     h.HandleExportRecord,
		TaskExportTimeSeries: h.HandleExportTimeSeries,
		TaskImportCalendar:   h.HandleImportCalendar,
	}
}

// HandleImportRecord runs an import_record job
func (h *TaskHandlers) HandleImportRecord(ctx context.Context, task *shared.Task) error {
	var p ImportPayload
	if err := h.decode(ctx, task, &p); err != nil {
		return err
	}
	_, err := h.importer.Import(ctx, p.BackendID, p.EntityType, p.ExternalID, p.Payload)
	return err
}

// HandleExportRecord runs an export_record job
func (h *TaskHandlers) HandleExportRecord(ctx context.Context, task *shared.Task) error {
	var p ExportPayload
	if err := h.decode(ctx, task, &p); err != nil {
		return err
	}
	return h.exporter.Export(ctx, p.BackendID, p.EntityType, p.InternalID, p.Changed)
}

// HandleExportTimeSeries runs an export_timeseries job. Failed chunks stay
// pending and are picked up by the next run, so they do not fail the job.
func (h *TaskHandlers) HandleExportTimeSeries(ctx context.Context, task *shared.Task) error {
	var p TimeSeriesPayload
	if err := h.decode(ctx, task, &p); err != nil {
		return err
	}
	window, err := p.Window()
	if err != nil {
		return h.rejectPayload(ctx, task, p.BackendID, err)
	}
	result, err := h.timeSeries.Export(ctx, p.BackendID, p.EntityType, window)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		h.logger.Warn("Time series export left rows pending",
			zap.String("task_id", task.ID.String()),
			zap.String("backend_id", p.BackendID),
			zap.String("entity_type", string(p.EntityType)),
			zap.Int("failed", result.Failed),
		)
	}
	return nil
}

// HandleImportCalendar runs an import_calendar job
func (h *TaskHandlers) HandleImportCalendar(ctx context.Context, task *shared.Task) error {
	var p CalendarPayload
	if err := h.decode(ctx, task, &p); err != nil {
		return err
	}
	_, err := h.calendar.Import(ctx, p)
	return err
}

// DeadLetter records an Issue for a task that exhausted its attempts,
// unless its failure was already reported.
func (h *TaskHandlers) DeadLetter(ctx context.Context, task *shared.Task, err error) {
	if isReported(err) {
		return
	}
	var head struct {
		BackendID  string             `json:"backend_id"`
		EntityType channel.EntityType `json:"entity_type"`
	}
	_ = json.Unmarshal(task.Payload, &head)

	section := channel.SectionGeneral
	if head.EntityType.IsValid() {
		section = head.EntityType.Section()
	}
	issue := channel.NewIssue(head.BackendID, section,
		fmt.Sprintf("task %s %s gave up after %d attempts: %v", task.Kind, task.ID, task.RetryCount, err)).
		WithError(err)
	if reportErr := h.issues.Report(ctx, issue); reportErr != nil {
		h.logger.Error("Failed to report dead task",
			zap.String("task_id", task.ID.String()),
			zap.Error(reportErr),
		)
	}
}

func (h *TaskHandlers) decode(ctx context.Context, task *shared.Task, v any) error {
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return h.rejectPayload(ctx, task, "", fmt.Errorf("%w: task payload: %v", channel.ErrInvalidInput, err))
	}
	return nil
}

func (h *TaskHandlers) rejectPayload(ctx context.Context, task *shared.Task, backendID string, err error) error {
	issue := channel.NewIssue(backendID, channel.SectionGeneral,
		fmt.Sprintf("task %s %s has an unusable payload", task.Kind, task.ID))
	return h.issues.report(ctx, issue, err)
}

// TaskAdmin exposes the dead letters of the queue to operators
type TaskAdmin struct {
	repo   shared.TaskRepository
	logger *zap.Logger
}

// NewTaskAdmin creates a new TaskAdmin
func NewTaskAdmin(repo shared.TaskRepository, logger *zap.Logger) *TaskAdmin {
	return &TaskAdmin{repo: repo, logger: logger.Named("task_admin")}
}

// ListDead returns a page of dead tasks
func (a *TaskAdmin) ListDead(ctx context.Context, page, pageSize int) ([]*shared.Task, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return a.repo.FindDead(ctx, page, pageSize)
}

// Retry puts a dead task back in the queue
func (a *TaskAdmin) Retry(ctx context.Context, id uuid.UUID) (*shared.Task, error) {
	task, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := task.ResetForRetry(); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidInput, err)
	}
	if err := a.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	a.logger.Info("Dead task requeued", zap.String("task_id", id.String()), zap.String("kind", task.Kind))
	return task, nil
}

// Stats returns the number of tasks per status
func (a *TaskAdmin) Stats(ctx context.Context) (map[shared.TaskStatus]int64, error) {
	return a.repo.CountByStatus(ctx)
}
