package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pms/channelsync/internal/domain/shared"
)

// Queue enqueues tasks on the durable task table
type Queue struct {
	repo       shared.TaskRepository
	maxRetries int
}

// NewQueue creates a queue. maxRetries <= 0 uses shared.DefaultMaxRetries.
func NewQueue(repo shared.TaskRepository, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = shared.DefaultMaxRetries
	}
	return &Queue{repo: repo, maxRetries: maxRetries}
}

// Schedule stores a task of kind carrying payload as JSON, due after delay
func (q *Queue) Schedule(ctx context.Context, kind string, payload any, delay time.Duration, priority int) (shared.TaskHandle, error) {
	if kind == "" {
		return shared.TaskHandle{}, fmt.Errorf("queue: task kind is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return shared.TaskHandle{}, fmt.Errorf("queue: encode %s payload: %w", kind, err)
	}
	if delay < 0 {
		delay = 0
	}

	task := shared.NewTask(kind, data, delay, priority)
	task.MaxRetries = q.maxRetries
	if err := q.repo.Save(ctx, task); err != nil {
		return shared.TaskHandle{}, fmt.Errorf("queue: save %s task: %w", kind, err)
	}
	return shared.TaskHandle{ID: task.ID, RunAt: task.RunAt}, nil
}

// Decode unmarshals the payload of a task into v
func Decode(task *shared.Task, v any) error {
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", task.Kind, err)
	}
	return nil
}
