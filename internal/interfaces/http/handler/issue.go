package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
)

// IssueQuerier lists and acknowledges sync issues
type IssueQuerier interface {
	List(ctx context.Context, filter channel.IssueFilter) ([]*channel.Issue, int64, error)
	Acknowledge(ctx context.Context, id uuid.UUID) (*channel.Issue, error)
	CountOpen(ctx context.Context, backendID string) (map[channel.Section]int64, error)
}

// IssueHandler serves the operator issue routes
type IssueHandler struct {
	BaseHandler
	service IssueQuerier
}

// NewIssueHandler creates a new IssueHandler
func NewIssueHandler(service IssueQuerier) *IssueHandler {
	return &IssueHandler{service: service}
}

// List handles GET /issues
func (h *IssueHandler) List(c *gin.Context) {
	var query dto.IssueListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}
	filter := query.ToFilter()

	issues, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToIssueResponses(issues), total, filter.Page, filter.PageSize)
}

// Counts handles GET /issues/counts
func (h *IssueHandler) Counts(c *gin.Context) {
	backendID := c.Query("backend_id")
	counts, err := h.service.CountOpen(c.Request.Context(), backendID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToIssueCountsResponse(backendID, counts))
}

// Acknowledge handles POST /issues/:id/ack
func (h *IssueHandler) Acknowledge(c *gin.Context) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	issue, err := h.service.Acknowledge(c.Request.Context(), uuid.MustParse(req.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToIssueResponse(issue))
}
