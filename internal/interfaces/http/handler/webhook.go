package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
)

// WebhookPuller accepts inbound deliveries from a channel backend
type WebhookPuller interface {
	PullReservation(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error)
	PullListing(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error)
	PullCalendar(ctx context.Context, backendID string, raw []byte, propertyRef string) (*channelsync.WebhookResult, error)
}

// WebhookHandler receives channel webhooks. Every accepted delivery answers
// 202 with the id of the queued import task.
type WebhookHandler struct {
	BaseHandler
	service WebhookPuller
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service WebhookPuller) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Reservation handles POST /webhooks/:backend/reservation
func (h *WebhookHandler) Reservation(c *gin.Context) {
	h.pull(c, func(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error) {
		return h.service.PullReservation(ctx, backendID, raw)
	})
}

// Listing handles POST /webhooks/:backend/listing
func (h *WebhookHandler) Listing(c *gin.Context) {
	h.pull(c, func(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error) {
		return h.service.PullListing(ctx, backendID, raw)
	})
}

// Calendar handles POST /webhooks/:backend/calendar/:property
func (h *WebhookHandler) Calendar(c *gin.Context) {
	property := c.Param("property")
	h.pull(c, func(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error) {
		return h.service.PullCalendar(ctx, backendID, raw, property)
	})
}

type pullFunc func(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error)

func (h *WebhookHandler) pull(c *gin.Context, fn pullFunc) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(raw) == 0 {
		h.BadRequest(c, "Request body is empty")
		return
	}

	result, err := fn(c.Request.Context(), c.Param("backend"), raw)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ToWebhookAcceptedResponse(result))
}
