package channelsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"go.uber.org/zap"
)

// IssueService stores operator issues and announces new ones
type IssueService struct {
	repo     channel.IssueRepository
	notifier channel.IssueNotifier
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewIssueService creates a new IssueService. notifier may be nil.
func NewIssueService(repo channel.IssueRepository, notifier channel.IssueNotifier, metrics Metrics, logger *zap.Logger) *IssueService {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &IssueService{
		repo:     repo,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("issues"),
		now:      time.Now,
	}
}

// Report persists an issue. Notification failures are logged only; the
// stored issue is the source of truth.
func (s *IssueService) Report(ctx context.Context, issue *channel.Issue) error {
	if err := s.repo.Create(ctx, issue); err != nil {
		s.logger.Error("Failed to store issue",
			zap.String("backend_id", issue.BackendID),
			zap.String("section", string(issue.Section)),
			zap.String("message", issue.Message),
			zap.Error(err),
		)
		return err
	}
	s.metrics.RecordIssue(ctx, issue.BackendID, issue.Section)

	s.logger.Warn("Sync issue raised",
		zap.String("issue_id", issue.ID.String()),
		zap.String("backend_id", issue.BackendID),
		zap.String("section", string(issue.Section)),
		zap.String("external_id", issue.ExternalID),
		zap.String("message", issue.Message),
	)

	if s.notifier != nil {
		if err := s.notifier.IssueRaised(ctx, issue); err != nil {
			s.logger.Warn("Failed to publish issue",
				zap.String("issue_id", issue.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// List returns one page of issues
func (s *IssueService) List(ctx context.Context, filter channel.IssueFilter) ([]*channel.Issue, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.repo.List(ctx, filter)
}

// Acknowledge closes an issue
func (s *IssueService) Acknowledge(ctx context.Context, id uuid.UUID) (*channel.Issue, error) {
	if err := s.repo.Acknowledge(ctx, id, s.now()); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// CountOpen counts open issues per section
func (s *IssueService) CountOpen(ctx context.Context, backendID string) (map[channel.Section]int64, error) {
	return s.repo.CountOpenBySection(ctx, backendID)
}

// reportedError marks an error whose issue is already stored
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// report stores an issue for a terminal failure and marks err as reported.
// Retryable failures are returned untouched so the queue can retry them.
func (s *IssueService) report(ctx context.Context, issue *channel.Issue, err error) error {
	if err == nil || channel.IsRetryable(err) {
		return err
	}
	if isReported(err) {
		return err
	}
	issue.WithError(err)
	if issue.Message == "" {
		issue.Message = err.Error()
	}
	if reportErr := s.Report(ctx, issue); reportErr != nil {
		return err
	}
	return reportedError{err}
}

// reportAttempt stores an issue for any failed attempt. A retryable failure
// keeps its retryable classification and raises no second issue while one
// for the same record is still open.
func (s *IssueService) reportAttempt(ctx context.Context, issue *channel.Issue, err error) error {
	if err == nil || isReported(err) {
		return err
	}
	if !channel.IsRetryable(err) {
		return s.report(ctx, issue, err)
	}

	if issue.InternalID != nil {
		open, _, listErr := s.repo.List(ctx, channel.IssueFilter{
			BackendID:  issue.BackendID,
			Section:    issue.Section,
			InternalID: issue.InternalID,
			OpenOnly:   true,
			Page:       1,
			PageSize:   1,
		})
		if listErr != nil {
			s.logger.Warn("Failed to look up open issues", zap.Error(listErr))
		} else if len(open) > 0 {
			return reportedError{err}
		}
	}

	issue.WithError(err)
	if reportErr := s.Report(ctx, issue); reportErr != nil {
		return err
	}
	return reportedError{err}
}

func isReported(err error) bool {
	var reported reportedError
	return errors.As(err, &reported)
}
