package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
	"github.com/pms/channelsync/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newWebhookRouter(service WebhookPuller, maxBody int64) *gin.Engine {
	h := NewWebhookHandler(service)
	r := gin.New()
	g := r.Group("/api/v1/webhooks/:backend", middleware.BodyLimit(maxBody))
	g.POST("/reservation", h.Reservation)
	g.POST("/listing", h.Listing)
	g.POST("/calendar/:property", h.Calendar)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Reservation(t *testing.T) {
	service := new(MockWebhookPuller)
	taskID := uuid.New()
	body := `{"event":"reservation.created","payload":{"id":"R-100"}}`
	service.On("PullReservation", mock.Anything, "booking", []byte(body)).Return(&channelsync.WebhookResult{
		Event:      "reservation.created",
		ExternalID: "R-100",
		Task:       shared.TaskHandle{ID: taskID},
	}, nil).Once()

	w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/booking/reservation", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "R-100", data["external_id"])
	assert.Equal(t, taskID.String(), data["task_id"])
	assert.Equal(t, false, data["duplicate"])
	service.AssertExpectations(t)
}

func TestWebhookHandler_DuplicateDelivery(t *testing.T) {
	service := new(MockWebhookPuller)
	service.On("PullListing", mock.Anything, "airbnb", mock.Anything).Return(&channelsync.WebhookResult{
		Event:      "listing.updated",
		ExternalID: "L-7",
		Duplicate:  true,
	}, nil).Once()

	w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/airbnb/listing", `{"event":"listing.updated","payload":{"id":"L-7"}}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, true, data["duplicate"])
	assert.NotContains(t, data, "task_id")
}

func TestWebhookHandler_CalendarPassesProperty(t *testing.T) {
	service := new(MockWebhookPuller)
	property := uuid.New().String()
	service.On("PullCalendar", mock.Anything, "airbnb", mock.Anything, property).Return(&channelsync.WebhookResult{
		Event:      "calendar.updated",
		ExternalID: "L-7",
		Task:       shared.TaskHandle{ID: uuid.New()},
	}, nil).Once()

	w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/airbnb/calendar/"+property,
		`{"event":"calendar.updated","payload":{"listing_id":"L-7","days":[{"date":"2026-05-01","available":2}]}}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	service.AssertExpectations(t)
}

func TestWebhookHandler_Errors(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		service := new(MockWebhookPuller)
		w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/booking/reservation", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		service.AssertNotCalled(t, "PullReservation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("oversized body", func(t *testing.T) {
		service := new(MockWebhookPuller)
		w := postJSON(newWebhookRouter(service, 16), "/api/v1/webhooks/booking/reservation", strings.Repeat("x", 64))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		service.AssertNotCalled(t, "PullReservation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid envelope", func(t *testing.T) {
		service := new(MockWebhookPuller)
		service.On("PullReservation", mock.Anything, "booking", mock.Anything).
			Return(nil, fmt.Errorf("%w: event is required", channel.ErrInvalidInput)).Once()

		w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/booking/reservation", `{"payload":{}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
	})

	t.Run("unknown backend", func(t *testing.T) {
		service := new(MockWebhookPuller)
		service.On("PullListing", mock.Anything, "nowhere", mock.Anything).
			Return(nil, fmt.Errorf("%w: nowhere", channel.ErrBackendNotConfigured)).Once()

		w := postJSON(newWebhookRouter(service, 1<<20), "/api/v1/webhooks/nowhere/listing", `{"event":"x","payload":{}}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeUnknownBackend, decodeResponse(t, w).Error.Code)
	})
}
