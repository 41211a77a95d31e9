package channelsync

import (
	"context"

	"github.com/pms/channelsync/internal/domain/channel"
)

// Metrics records pipeline outcomes. telemetry.SyncMetrics implements it.
type Metrics interface {
	RecordSync(ctx context.Context, backendID string, entityType channel.EntityType, direction channel.Direction, err error)
	RecordIssue(ctx context.Context, backendID string, section channel.Section)
}

type noopMetrics struct{}

func (noopMetrics) RecordSync(context.Context, string, channel.EntityType, channel.Direction, error) {}
func (noopMetrics) RecordIssue(context.Context, string, channel.Section)                             {}

// NoopMetrics discards every measurement
func NoopMetrics() Metrics {
	return noopMetrics{}
}
