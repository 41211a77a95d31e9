package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "pms-channelsync",
		Insecure:          true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, provider.IsEnabled())

	core := provider.Core()
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	assert.NoError(t, provider.ForceFlush(ctx))
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestNewLoggerProvider_EnabledWithoutCollector(t *testing.T) {
	ctx := context.Background()

	// the exporter connects lazily, so no collector is needed to build it
	provider, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:19999",
		ServiceName:       "pms-channelsync",
		Insecure:          true,
		Level:             zapcore.WarnLevel,
	}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()
	assert.True(t, provider.IsEnabled())

	core := provider.Core()
	_, filtered := core.(*levelFilterCore)
	assert.True(t, filtered)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}

func TestLoggerProvider_CoreAtDebugIsUnfiltered(t *testing.T) {
	ctx := context.Background()

	provider, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:19999",
		ServiceName:       "pms-channelsync",
		Insecure:          true,
		Level:             zapcore.DebugLevel,
	}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()

	_, filtered := provider.Core().(*levelFilterCore)
	assert.False(t, filtered)
}

func TestNilLoggerProvider_CoreIsNop(t *testing.T) {
	var provider *LoggerProvider
	assert.False(t, provider.Core().Enabled(zapcore.ErrorLevel))
}

func TestLevelFilterCore(t *testing.T) {
	inner, recorded := observer.New(zapcore.DebugLevel)
	log := zap.New(&levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel})

	log.Debug("binding looked up")
	log.Info("record exported")
	log.Warn("backend throttled")
	log.Error("export failed")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "backend throttled", entries[0].Message)
	assert.Equal(t, "export failed", entries[1].Message)
}

func TestLevelFilterCore_WithKeepsLevel(t *testing.T) {
	inner, recorded := observer.New(zapcore.DebugLevel)
	log := zap.New(&levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}).
		With(zap.String("backend_id", "ota"))

	log.Info("dropped")
	log.Warn("kept")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ota", entries[0].ContextMap()["backend_id"])
}
