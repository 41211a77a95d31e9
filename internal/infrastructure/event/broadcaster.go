package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pms/channelsync/internal/domain/channel"
	"go.uber.org/zap"
)

// Broadcaster delivers each raised issue to every subscribed notifier.
// A failing or panicking subscriber does not stop delivery to the others.
type Broadcaster struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers []channel.IssueNotifier
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{logger: logger.Named("event")}
}

// Subscribe adds a notifier
func (b *Broadcaster) Subscribe(n channel.IssueNotifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, n)
}

// Len returns the number of subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// IssueRaised implements channel.IssueNotifier
func (b *Broadcaster) IssueRaised(ctx context.Context, issue *channel.Issue) error {
	b.mu.RLock()
	subscribers := append([]channel.IssueNotifier(nil), b.subscribers...)
	b.mu.RUnlock()

	var errs []error
	for _, n := range subscribers {
		if err := b.dispatch(ctx, n, issue); err != nil {
			b.logger.Error("issue notifier failed",
				zap.String("issue_id", issue.ID.String()),
				zap.String("backend_id", issue.BackendID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) dispatch(ctx context.Context, n channel.IssueNotifier, issue *channel.Issue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("issue notifier panicked: %v", r)
		}
	}()
	return n.IssueRaised(ctx, issue)
}

// LogNotifier writes raised issues to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// IssueRaised implements channel.IssueNotifier
func (n *LogNotifier) IssueRaised(_ context.Context, issue *channel.Issue) error {
	fields := []zap.Field{
		zap.String("issue_id", issue.ID.String()),
		zap.String("backend_id", issue.BackendID),
		zap.String("section", string(issue.Section)),
		zap.String("message", issue.Message),
	}
	if issue.ExternalID != "" {
		fields = append(fields, zap.String("external_id", issue.ExternalID))
	}
	if issue.InternalID != nil {
		fields = append(fields, zap.String("internal_id", issue.InternalID.String()))
	}
	n.logger.Warn("Channel issue raised", fields...)
	return nil
}
