package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/queue"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(admin DeadTaskAdmin, planner ExportTrigger) *gin.Engine {
	tasks := NewTaskHandler(admin)
	backends := NewBackendHandler(planner)
	r := gin.New()
	r.GET("/api/v1/tasks/dead", tasks.ListDead)
	r.GET("/api/v1/tasks/stats", tasks.Stats)
	r.POST("/api/v1/tasks/:id/retry", tasks.Retry)
	r.POST("/api/v1/backends/:backend/exports", backends.RunExports)
	return r
}

func deadTask() *shared.Task {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &shared.Task{
		ID:         uuid.New(),
		Kind:       "export_record",
		Status:     shared.TaskStatusDead,
		RetryCount: 5,
		MaxRetries: 5,
		LastError:  "gateway timeout",
		RunAt:      now,
		CreatedAt:  now,
	}
}

func TestTaskHandler_ListDead(t *testing.T) {
	admin := new(MockDeadTaskAdmin)
	task := deadTask()
	admin.On("ListDead", mock.Anything, 1, 20).Return([]*shared.Task{task}, int64(1), nil).Once()

	w := httptest.NewRecorder()
	newAdminRouter(admin, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/dead", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	items := decodeResponse(t, w).Data.([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "DEAD", item["status"])
	assert.Equal(t, "gateway timeout", item["last_error"])
	admin.AssertExpectations(t)
}

func TestTaskHandler_Retry(t *testing.T) {
	t.Run("requeues", func(t *testing.T) {
		admin := new(MockDeadTaskAdmin)
		task := deadTask()
		task.Status = shared.TaskStatusPending
		task.RetryCount = 0
		admin.On("Retry", mock.Anything, task.ID).Return(task, nil).Once()

		w := httptest.NewRecorder()
		newAdminRouter(admin, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/retry", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "PENDING", decodeResponse(t, w).Data.(map[string]any)["status"])
	})

	t.Run("missing task", func(t *testing.T) {
		admin := new(MockDeadTaskAdmin)
		id := uuid.New()
		admin.On("Retry", mock.Anything, id).Return(nil, queue.ErrTaskNotFound).Once()

		w := httptest.NewRecorder()
		newAdminRouter(admin, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+id.String()+"/retry", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTaskHandler_Stats(t *testing.T) {
	admin := new(MockDeadTaskAdmin)
	admin.On("Stats", mock.Anything).Return(map[shared.TaskStatus]int64{
		shared.TaskStatusPending: 4,
		shared.TaskStatusDead:    1,
	}, nil).Once()

	w := httptest.NewRecorder()
	newAdminRouter(admin, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(4), data["PENDING"])
	assert.Equal(t, float64(1), data["DEAD"])
}

func TestBackendHandler_RunExports(t *testing.T) {
	t.Run("plans exports", func(t *testing.T) {
		planner := new(MockExportTrigger)
		planner.On("RunExports", mock.Anything, "booking").Return(&channelsync.PlanResult{
			BackendID: "booking",
			Records: map[channel.EntityType]*channelsync.BatchResult{
				channel.EntityRoomType: {Total: 3, Scheduled: 3},
			},
			TimeSeries: []shared.TaskHandle{{ID: uuid.New()}},
		}, nil).Once()

		w := httptest.NewRecorder()
		newAdminRouter(nil, planner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backends/booking/exports", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "booking", data["backend_id"])
		assert.Len(t, data["time_series_tasks"], 1)
	})

	t.Run("unexpected failure", func(t *testing.T) {
		planner := new(MockExportTrigger)
		planner.On("RunExports", mock.Anything, "booking").Return(nil, errors.New("db closed")).Once()

		w := httptest.NewRecorder()
		newAdminRouter(nil, planner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backends/booking/exports", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, dto.ErrCodeInternal, decodeResponse(t, w).Error.Code)
	})
}
