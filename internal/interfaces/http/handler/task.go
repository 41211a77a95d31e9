package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
)

// DeadTaskAdmin inspects and requeues dead tasks
type DeadTaskAdmin interface {
	ListDead(ctx context.Context, page, pageSize int) ([]*shared.Task, int64, error)
	Retry(ctx context.Context, id uuid.UUID) (*shared.Task, error)
	Stats(ctx context.Context) (map[shared.TaskStatus]int64, error)
}

// TaskHandler serves the queue administration routes
type TaskHandler struct {
	BaseHandler
	admin DeadTaskAdmin
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(admin DeadTaskAdmin) *TaskHandler {
	return &TaskHandler{admin: admin}
}

// ListDead handles GET /tasks/dead
func (h *TaskHandler) ListDead(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	req.Normalize()

	tasks, total, err := h.admin.ListDead(c.Request.Context(), req.Page, req.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToTaskResponses(tasks), total, req.Page, req.PageSize)
}

// Retry handles POST /tasks/:id/retry
func (h *TaskHandler) Retry(c *gin.Context) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	task, err := h.admin.Retry(c.Request.Context(), uuid.MustParse(req.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToTaskResponse(task))
}

// Stats handles GET /tasks/stats
func (h *TaskHandler) Stats(c *gin.Context) {
	counts, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	h.Success(c, out)
}
