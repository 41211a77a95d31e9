package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTaskNotFound is returned when a task does not exist
var ErrTaskNotFound = errors.New("queue: task not found")

// GormTaskRepository implements shared.TaskRepository on the sync_tasks table
type GormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based task repository
func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormTaskRepository) WithTx(tx *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: tx}
}

// Save persists one or more tasks
func (r *GormTaskRepository) Save(ctx context.Context, tasks ...*shared.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	taskModels := make([]*models.TaskModel, len(tasks))
	for i, t := range tasks {
		taskModels[i] = &models.TaskModel{}
		taskModels[i].FromDomain(t)
	}
	return r.db.WithContext(ctx).Create(taskModels).Error
}

// ClaimDue locks up to limit due tasks with FOR UPDATE SKIP LOCKED, marks them
// as processing and returns them. Concurrent workers never claim the same row.
func (r *GormTaskRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*shared.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*shared.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taskModels []models.TaskModel
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("status IN ? AND run_at <= ?", []string{
				string(shared.TaskStatusPending),
				string(shared.TaskStatusFailed),
			}, now).
			Order("priority ASC, run_at ASC").
			Limit(limit).
			Find(&taskModels).Error; err != nil {
			return err
		}

		if len(taskModels) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(taskModels))
		for i := range taskModels {
			ids[i] = taskModels[i].ID
		}

		updatedAt := time.Now()
		if err := tx.Model(&models.TaskModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     string(shared.TaskStatusProcessing),
				"updated_at": updatedAt,
			}).Error; err != nil {
			return err
		}

		claimed = make([]*shared.Task, len(taskModels))
		for i := range taskModels {
			task := taskModels[i].ToDomain()
			task.Status = shared.TaskStatusProcessing
			task.UpdatedAt = updatedAt
			claimed[i] = task
		}
		return nil
	})
	return claimed, err
}

// FindByID retrieves a single task
func (r *GormTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.Task, error) {
	var model models.TaskModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDead retrieves dead tasks with pagination
func (r *GormTaskRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.Task, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("status = ?", string(shared.TaskStatusDead)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var taskModels []models.TaskModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(shared.TaskStatusDead)).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&taskModels).Error; err != nil {
		return nil, 0, err
	}

	tasks := make([]*shared.Task, len(taskModels))
	for i := range taskModels {
		tasks[i] = taskModels[i].ToDomain()
	}
	return tasks, total, nil
}

// Update updates an existing task
func (r *GormTaskRepository) Update(ctx context.Context, task *shared.Task) error {
	task.UpdatedAt = time.Now()
	var model models.TaskModel
	model.FromDomain(task)
	return r.db.WithContext(ctx).Save(&model).Error
}

// ReleaseStale returns tasks stuck in processing since before to pending,
// e.g. after a worker crashed mid-task
func (r *GormTaskRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("status = ? AND updated_at < ?", string(shared.TaskStatusProcessing), before).
		Updates(map[string]any{
			"status":     string(shared.TaskStatusPending),
			"run_at":     time.Now(),
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// DeleteOlderThan deletes completed tasks processed before the given time
func (r *GormTaskRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", string(shared.TaskStatusDone), before).
		Delete(&models.TaskModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns count of tasks for each status
func (r *GormTaskRepository) CountByStatus(ctx context.Context) (map[shared.TaskStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var results []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.TaskStatus]int64, len(results))
	for _, row := range results {
		counts[shared.TaskStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// Ensure GormTaskRepository implements TaskRepository
var _ shared.TaskRepository = (*GormTaskRepository)(nil)
