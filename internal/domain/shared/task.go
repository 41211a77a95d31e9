package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a queued task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDead       TaskStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 10 * time.Minute
)

// Task priorities, lower runs first
const (
	PriorityHigh   = 5
	PriorityNormal = 10
	PriorityLow    = 20
)

// BackoffPolicy computes the delay before the next attempt of a failed task
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoffPolicy returns the default exponential backoff
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: DefaultBaseBackoff, Max: DefaultMaxBackoff}
}

// Delay returns base * 2^(attempt-1), capped at Max
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if p.Max > 0 && (d > p.Max || d <= 0) {
		return p.Max
	}
	return d
}

// Task is a unit of deferred work stored in the durable queue. Payload holds
// everything a handler needs to re-execute the work independently.
type Task struct {
	ID          uuid.UUID
	Kind        string
	Payload     []byte
	Priority    int
	Status      TaskStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	RunAt       time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask creates a pending task due after delay
func NewTask(kind string, payload []byte, delay time.Duration, priority int) *Task {
	now := time.Now()
	return &Task{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    payload,
		Priority:   priority,
		Status:     TaskStatusPending,
		MaxRetries: DefaultMaxRetries,
		RunAt:      now.Add(delay),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsDue reports whether the task can be claimed at now
func (t *Task) IsDue(now time.Time) bool {
	return (t.Status == TaskStatusPending || t.Status == TaskStatusFailed) && !t.RunAt.After(now)
}

// MarkProcessing marks the task as claimed by a worker
func (t *Task) MarkProcessing() error {
	if t.Status != TaskStatusPending && t.Status != TaskStatusFailed {
		return errors.New("can only mark pending or failed tasks as processing")
	}
	t.Status = TaskStatusProcessing
	t.UpdatedAt = time.Now()
	return nil
}

// MarkDone marks the task as completed
func (t *Task) MarkDone() {
	now := time.Now()
	t.Status = TaskStatusDone
	t.ProcessedAt = &now
	t.UpdatedAt = now
}

// MarkFailed records a failed attempt. Retryable failures are rescheduled
// with backoff until MaxRetries; anything else goes straight to DEAD.
func (t *Task) MarkFailed(errMsg string, retryable bool, backoff BackoffPolicy) {
	t.RetryCount++
	t.LastError = errMsg
	now := time.Now()
	t.UpdatedAt = now

	if !retryable || t.RetryCount >= t.MaxRetries {
		t.Status = TaskStatusDead
		t.ProcessedAt = &now
		return
	}
	t.Status = TaskStatusFailed
	t.RunAt = now.Add(backoff.Delay(t.RetryCount))
}

// Release returns a claimed task to the queue without counting an attempt
func (t *Task) Release() {
	now := time.Now()
	t.Status = TaskStatusPending
	t.RunAt = now
	t.UpdatedAt = now
}

// ResetForRetry puts a dead task back in the queue
func (t *Task) ResetForRetry() error {
	if t.Status != TaskStatusDead {
		return errors.New("can only retry dead tasks")
	}
	now := time.Now()
	t.Status = TaskStatusPending
	t.RetryCount = 0
	t.LastError = ""
	t.RunAt = now
	t.ProcessedAt = nil
	t.UpdatedAt = now
	return nil
}

// IsDead returns true if the task needs operator action
func (t *Task) IsDead() bool {
	return t.Status == TaskStatusDead
}

// TaskHandle identifies a scheduled task
type TaskHandle struct {
	ID    uuid.UUID
	RunAt time.Time
}

// TaskRepository defines the interface for task queue persistence
type TaskRepository interface {
	// Save persists one or more tasks
	Save(ctx context.Context, tasks ...*Task) error
	// ClaimDue atomically marks up to limit due tasks as processing and returns them
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Task, error)
	// FindByID retrieves a single task
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	// FindDead retrieves dead tasks with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*Task, int64, error)
	// Update updates an existing task
	Update(ctx context.Context, task *Task) error
	// ReleaseStale returns tasks stuck in processing since before to pending
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	// DeleteOlderThan deletes completed tasks processed before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of tasks for each status
	CountByStatus(ctx context.Context) (map[TaskStatus]int64, error)
}
