package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newIssueRouter(service IssueQuerier) *gin.Engine {
	h := NewIssueHandler(service)
	r := gin.New()
	r.GET("/api/v1/issues", h.List)
	r.GET("/api/v1/issues/counts", h.Counts)
	r.POST("/api/v1/issues/:id/ack", h.Acknowledge)
	return r
}

func TestIssueHandler_List(t *testing.T) {
	service := new(MockIssueQuerier)
	issue := channel.NewIssue("booking", channel.SectionReservation, "reservation rejected").WithExternal("R-1")
	service.On("List", mock.Anything, channel.IssueFilter{
		BackendID: "booking",
		Section:   channel.SectionReservation,
		OpenOnly:  true,
		Page:      2,
		PageSize:  5,
	}).Return([]*channel.Issue{issue}, int64(6), nil).Once()

	w := httptest.NewRecorder()
	newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/issues?backend_id=booking&section=reservation&page=2&page_size=5", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(6), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "R-1", items[0].(map[string]any)["external_id"])
	service.AssertExpectations(t)
}

func TestIssueHandler_ListIncludesAcknowledged(t *testing.T) {
	service := new(MockIssueQuerier)
	service.On("List", mock.Anything, mock.MatchedBy(func(f channel.IssueFilter) bool {
		return !f.OpenOnly && f.Page == 1 && f.PageSize == 20
	})).Return([]*channel.Issue{}, int64(0), nil).Once()

	w := httptest.NewRecorder()
	newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/issues?open_only=false", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestIssueHandler_ListRejectsBadSection(t *testing.T) {
	service := new(MockIssueQuerier)

	w := httptest.NewRecorder()
	newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/issues?section=spa", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	service.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestIssueHandler_Counts(t *testing.T) {
	service := new(MockIssueQuerier)
	service.On("CountOpen", mock.Anything, "booking").Return(map[channel.Section]int64{
		channel.SectionAvailability: 3,
		channel.SectionReservation:  1,
	}, nil).Once()

	w := httptest.NewRecorder()
	newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/issues/counts?backend_id=booking", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(4), data["total"])
	assert.Equal(t, float64(3), data["sections"].(map[string]any)["availability"])
}

func TestIssueHandler_Acknowledge(t *testing.T) {
	t.Run("acknowledges", func(t *testing.T) {
		service := new(MockIssueQuerier)
		issue := channel.NewIssue("booking", channel.SectionAvailability, "overbooked")
		acked := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
		issue.AcknowledgedAt = &acked
		service.On("Acknowledge", mock.Anything, issue.ID).Return(issue, nil).Once()

		w := httptest.NewRecorder()
		newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/issues/"+issue.ID.String()+"/ack", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "2026-04-02T09:00:00Z", data["acknowledged_at"])
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		service := new(MockIssueQuerier)

		w := httptest.NewRecorder()
		newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/issues/not-a-uuid/ack", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		service.AssertNotCalled(t, "Acknowledge", mock.Anything, mock.Anything)
	})

	t.Run("unknown issue", func(t *testing.T) {
		service := new(MockIssueQuerier)
		id := uuid.New()
		service.On("Acknowledge", mock.Anything, id).Return(nil, fmt.Errorf("%w: issue %s", channel.ErrNotFound, id)).Once()

		w := httptest.NewRecorder()
		newIssueRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/issues/"+id.String()+"/ack", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})
}
