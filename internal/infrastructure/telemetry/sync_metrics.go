package telemetry

import (
	"context"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics records import/export outcomes, raised issues, backend call
// latency and queue depth.
type SyncMetrics struct {
	syncs      *Counter
	issues     *Counter
	calls      *Counter
	callTime   *Histogram
	queueDepth *Gauge
}

// NewSyncMetrics creates the sync instruments on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	syncs, err := NewCounter(meter, "channel_sync_total", "Records imported or exported per backend", "{record}")
	if err != nil {
		return nil, err
	}
	issues, err := NewCounter(meter, "channel_issues_total", "Issues raised per backend and section", "{issue}")
	if err != nil {
		return nil, err
	}
	calls, err := NewCounter(meter, "channel_backend_calls_total", "Calls made to channel backends", "{call}")
	if err != nil {
		return nil, err
	}
	callTime, err := NewHistogram(meter, HistogramOpts{
		Name:        "channel_backend_call_duration_seconds",
		Description: "Latency of channel backend calls",
		Unit:        "s",
		Boundaries:  BackendCallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	queueDepth, err := NewGauge(meter, "channel_queue_tasks", "Queued sync tasks per status", "{task}")
	if err != nil {
		return nil, err
	}
	return &SyncMetrics{
		syncs:      syncs,
		issues:     issues,
		calls:      calls,
		callTime:   callTime,
		queueDepth: queueDepth,
	}, nil
}

// RecordSync counts one imported or exported record.
func (m *SyncMetrics) RecordSync(ctx context.Context, backendID string, entityType channel.EntityType, direction channel.Direction, err error) {
	m.syncs.Inc(ctx,
		AttrBackendID.String(backendID),
		AttrEntityType.String(string(entityType)),
		AttrOperation.String(string(direction)),
		outcome(err),
	)
}

// RecordIssue counts one raised issue.
func (m *SyncMetrics) RecordIssue(ctx context.Context, backendID string, section channel.Section) {
	m.issues.Inc(ctx, AttrBackendID.String(backendID), AttrSection.String(string(section)))
}

// ObserveCall records a backend call made by a connector adapter.
func (m *SyncMetrics) ObserveCall(ctx context.Context, backendID string, entityType channel.EntityType, op string, d time.Duration, err error) {
	attrs := []attribute.KeyValue{
		AttrBackendID.String(backendID),
		AttrEntityType.String(string(entityType)),
		AttrOperation.String(op),
	}
	m.callTime.RecordDuration(ctx, d, attrs...)
	m.calls.Inc(ctx, append(attrs, outcome(err))...)
}

// RecordQueueDepth records the current task count for each status.
func (m *SyncMetrics) RecordQueueDepth(ctx context.Context, counts map[shared.TaskStatus]int64) {
	for _, status := range []shared.TaskStatus{
		shared.TaskStatusPending,
		shared.TaskStatusProcessing,
		shared.TaskStatusFailed,
		shared.TaskStatusDead,
	} {
		m.queueDepth.Record(ctx, counts[status], attribute.String("status", string(status)))
	}
}

func outcome(err error) attribute.KeyValue {
	switch {
	case err == nil:
		return AttrOutcome.String("success")
	case channel.IsRetryable(err):
		return AttrOutcome.String("retryable")
	default:
		return AttrOutcome.String("failed")
	}
}
