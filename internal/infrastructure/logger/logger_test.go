package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := New(&Config{Level: "debug", Format: format, Output: "stderr"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := New(&Config{Output: "/nonexistent-dir/pms.log"})
	assert.Error(t, err)
}

func TestTee(t *testing.T) {
	stdout, printed := observer.New(zapcore.InfoLevel)
	shipped, exported := observer.New(zapcore.WarnLevel)
	log := Tee(zap.New(stdout), shipped).With(zap.String("backend_id", "ota"))

	log.Info("record exported")
	log.Warn("backend throttled")

	assert.Equal(t, 2, printed.Len())
	entries := exported.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "backend throttled", entries[0].Message)
	assert.Equal(t, "ota", entries[0].ContextMap()["backend_id"])

	base := zap.New(stdout)
	assert.Same(t, base, Tee(base))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestL_InjectsCorrelationFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithBackendID(ctx, "booking")
	ctx = WithTaskID(ctx, "task-9")

	L(ctx).Info("exported")

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "booking", fields["backend_id"])
	assert.Equal(t, "task-9", fields["task_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestFromContext_NotFound(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, GetBackendID(context.Background()))
	assert.NotPanics(t, func() { L(context.Background()).Info("dropped") })
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.InfoLevel)

	var seenRequestID string
	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) {
		seenRequestID = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})
	router.GET("/bad", func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	router.ServeHTTP(w, req)

	assert.Equal(t, "given-id", seenRequestID)
	assert.Equal(t, "given-id", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, recorded.FilterMessage("Panic recovered").Len())
}

func TestGormLogger_Trace(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(10*time.Millisecond))
	ctx := WithTaskID(context.Background(), "task-1")
	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(ctx, time.Now(), sql, nil)
	gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	gl.Trace(ctx, time.Now(), sql, errors.New("syntax error"))
	gl.Trace(ctx, time.Now(), sql, gormlogger.ErrRecordNotFound)

	entries := recorded.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "SQL Query", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "SQL Error", entries[2].Message)
	assert.Equal(t, "task-1", entries[2].ContextMap()["task_id"])
}

func TestGormLogger_SilentAndLevels(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info).LogMode(gormlogger.Silent)
	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, nil)
	assert.Zero(t, recorded.Len())

	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
