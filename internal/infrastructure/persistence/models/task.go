package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/shared"
	"gorm.io/datatypes"
)

// TaskModel is the persistence model for shared.Task
type TaskModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Kind        string         `gorm:"type:varchar(64);not null;index"`
	Payload     datatypes.JSON `gorm:"not null"`
	Priority    int            `gorm:"not null;index:idx_task_due,priority:3"`
	Status      string         `gorm:"type:varchar(20);not null;index:idx_task_due,priority:1"`
	RetryCount  int            `gorm:"not null;default:0"`
	MaxRetries  int            `gorm:"not null;default:5"`
	LastError   string         `gorm:"type:text"`
	RunAt       time.Time      `gorm:"not null;index:idx_task_due,priority:2"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TaskModel) TableName() string {
	return "sync_tasks"
}

// ToDomain converts the persistence model to a domain Task
func (m *TaskModel) ToDomain() *shared.Task {
	return &shared.Task{
		ID:          m.ID,
		Kind:        m.Kind,
		Payload:     []byte(m.Payload),
		Priority:    m.Priority,
		Status:      shared.TaskStatus(m.Status),
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		RunAt:       m.RunAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Task
func (m *TaskModel) FromDomain(t *shared.Task) {
	m.ID = t.ID
	m.Kind = t.Kind
	m.Payload = datatypes.JSON(t.Payload)
	m.Priority = t.Priority
	m.Status = string(t.Status)
	m.RetryCount = t.RetryCount
	m.MaxRetries = t.MaxRetries
	m.LastError = t.LastError
	m.RunAt = t.RunAt
	m.ProcessedAt = t.ProcessedAt
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
}
