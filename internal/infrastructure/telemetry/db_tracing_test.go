package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:50"`
}

func newTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func statementSpan(t *testing.T) (*tracetest.SpanRecorder, context.Context, func()) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "db.statement")
	return sr, ctx, func() { span.End() }
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingPlugin_DefaultsThreshold(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
}

func TestRegisterOtelGorm(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		db := newTracedDB(t)
		p := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
		require.NoError(t, p.RegisterOtelGorm(db))
		assert.Nil(t, db.Callback().Create().Get("otel_timing:before_create"))
	})

	t.Run("enabled", func(t *testing.T) {
		db := newTracedDB(t)
		cfg := DefaultDBTracingConfig()
		cfg.Enabled = true
		cfg.DBSystem = "sqlite"
		p := NewDBTracingPlugin(cfg, zap.NewNop())
		require.NoError(t, p.RegisterOtelGorm(db))
		assert.NotNil(t, db.Callback().Create().Get("otel_timing:before_create"))
		assert.NotNil(t, db.Callback().Raw().Get("otel_timing:after_raw"))

		require.NoError(t, db.Create(&tracedRow{Code: "STD"}).Error)
		var got tracedRow
		require.NoError(t, db.First(&got).Error)
		assert.Equal(t, "STD", got.Code)
	})
}

func TestAfterQuery_MarksSlowStatement(t *testing.T) {
	sr, ctx, end := statementSpan(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Millisecond}, zap.NewNop())

	ctx = context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Second))
	p.afterQuery(&gorm.DB{Statement: &gorm.Statement{DB: &gorm.DB{RowsAffected: 2}, Context: ctx, Table: "channel_bindings"}})
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := make(map[attribute.Key]attribute.Value)
	for _, a := range spans[0].Attributes() {
		attrs[a.Key] = a.Value
	}
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.Equal(t, "channel_bindings", attrs["db.sql.table"].AsString())
	assert.Equal(t, int64(2), attrs["db.rows_affected"].AsInt64())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "slow_query_warning", spans[0].Events()[0].Name)
}

func TestAfterQuery_RecordsErrors(t *testing.T) {
	sr, ctx, end := statementSpan(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())

	p.afterQuery(&gorm.DB{Statement: &gorm.Statement{Context: ctx}, Error: gorm.ErrRecordNotFound})
	p.afterQuery(&gorm.DB{Statement: &gorm.Statement{Context: ctx}, Error: errors.New("disk I/O error")})
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "disk I/O error", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}
