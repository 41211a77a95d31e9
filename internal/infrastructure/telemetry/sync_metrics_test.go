package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestSyncMetrics(t *testing.T) (*telemetry.SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, kv ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(kv...)
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, a := range want.ToSlice() {
			v, found := dp.Attributes.Value(a.Key)
			if !found || v != a.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestSyncMetrics_RecordSync(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordSync(ctx, "booking", channel.EntityRoomType, channel.DirectionExport, nil)
	m.RecordSync(ctx, "booking", channel.EntityRoomType, channel.DirectionExport, nil)
	m.RecordSync(ctx, "booking", channel.EntityRoomType, channel.DirectionExport, channel.NewChannelError("timeout", "", nil))
	m.RecordSync(ctx, "booking", channel.EntityReservation, channel.DirectionImport, channel.ErrInvalidInput)

	syncs := collect(t, reader)["channel_sync_total"]
	assert.Equal(t, int64(2), sumFor(t, syncs,
		telemetry.AttrEntityType.String("room_type"), telemetry.AttrOutcome.String("success")))
	assert.Equal(t, int64(1), sumFor(t, syncs, telemetry.AttrOutcome.String("retryable")))
	assert.Equal(t, int64(1), sumFor(t, syncs,
		telemetry.AttrOperation.String("IMPORT"), telemetry.AttrOutcome.String("failed")))
}

func TestSyncMetrics_RecordIssue(t *testing.T) {
	m, reader := newTestSyncMetrics(t)

	m.RecordIssue(context.Background(), "booking", channel.SectionAvailability)
	m.RecordIssue(context.Background(), "airbnb", channel.SectionAvailability)

	issues := collect(t, reader)["channel_issues_total"]
	assert.Equal(t, int64(2), sumFor(t, issues, telemetry.AttrSection.String(string(channel.SectionAvailability))))
	assert.Equal(t, int64(1), sumFor(t, issues, telemetry.AttrBackendID.String("airbnb")))
}

func TestSyncMetrics_ObserveCall(t *testing.T) {
	m, reader := newTestSyncMetrics(t)

	m.ObserveCall(context.Background(), "booking", channel.EntityAvailability, "write_many", 120*time.Millisecond, nil)
	m.ObserveCall(context.Background(), "booking", channel.EntityAvailability, "write_many", 2*time.Second, errors.New("closed"))

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, metrics["channel_backend_calls_total"], telemetry.AttrOutcome.String("failed")))

	hist, ok := metrics["channel_backend_call_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 2.12, hist.DataPoints[0].Sum, 0.0001)
}

func TestSyncMetrics_RecordQueueDepth(t *testing.T) {
	m, reader := newTestSyncMetrics(t)

	m.RecordQueueDepth(context.Background(), map[shared.TaskStatus]int64{
		shared.TaskStatusPending: 7,
		shared.TaskStatusDead:    1,
	})

	gauge, ok := collect(t, reader)["channel_queue_tasks"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	values := make(map[string]int64)
	for _, dp := range gauge.DataPoints {
		status, _ := dp.Attributes.Value("status")
		values[status.AsString()] = dp.Value
	}
	assert.Equal(t, int64(7), values["PENDING"])
	assert.Equal(t, int64(1), values["DEAD"])
	assert.Equal(t, int64(0), values["PROCESSING"])
}
