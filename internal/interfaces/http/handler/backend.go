package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
)

// ExportTrigger plans the exports of a backend
type ExportTrigger interface {
	RunExports(ctx context.Context, backendID string) (*channelsync.PlanResult, error)
}

// BackendHandler serves per-backend operator actions
type BackendHandler struct {
	BaseHandler
	planner ExportTrigger
}

// NewBackendHandler creates a new BackendHandler
func NewBackendHandler(planner ExportTrigger) *BackendHandler {
	return &BackendHandler{planner: planner}
}

// RunExports handles POST /backends/:backend/exports
func (h *BackendHandler) RunExports(c *gin.Context) {
	result, err := h.planner.RunExports(c.Request.Context(), c.Param("backend"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ToPlanResponse(result))
}
