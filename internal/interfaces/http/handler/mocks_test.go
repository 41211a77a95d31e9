package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type MockWebhookPuller struct {
	mock.Mock
}

func (m *MockWebhookPuller) PullReservation(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error) {
	args := m.Called(ctx, backendID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channelsync.WebhookResult), args.Error(1)
}

func (m *MockWebhookPuller) PullListing(ctx context.Context, backendID string, raw []byte) (*channelsync.WebhookResult, error) {
	args := m.Called(ctx, backendID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channelsync.WebhookResult), args.Error(1)
}

func (m *MockWebhookPuller) PullCalendar(ctx context.Context, backendID string, raw []byte, propertyRef string) (*channelsync.WebhookResult, error) {
	args := m.Called(ctx, backendID, raw, propertyRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channelsync.WebhookResult), args.Error(1)
}

type MockIssueQuerier struct {
	mock.Mock
}

func (m *MockIssueQuerier) List(ctx context.Context, filter channel.IssueFilter) ([]*channel.Issue, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*channel.Issue), args.Get(1).(int64), args.Error(2)
}

func (m *MockIssueQuerier) Acknowledge(ctx context.Context, id uuid.UUID) (*channel.Issue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.Issue), args.Error(1)
}

func (m *MockIssueQuerier) CountOpen(ctx context.Context, backendID string) (map[channel.Section]int64, error) {
	args := m.Called(ctx, backendID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[channel.Section]int64), args.Error(1)
}

type MockDeadTaskAdmin struct {
	mock.Mock
}

func (m *MockDeadTaskAdmin) ListDead(ctx context.Context, page, pageSize int) ([]*shared.Task, int64, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*shared.Task), args.Get(1).(int64), args.Error(2)
}

func (m *MockDeadTaskAdmin) Retry(ctx context.Context, id uuid.UUID) (*shared.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Task), args.Error(1)
}

func (m *MockDeadTaskAdmin) Stats(ctx context.Context) (map[shared.TaskStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[shared.TaskStatus]int64), args.Error(1)
}

type MockExportTrigger struct {
	mock.Mock
}

func (m *MockExportTrigger) RunExports(ctx context.Context, backendID string) (*channelsync.PlanResult, error) {
	args := m.Called(ctx, backendID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channelsync.PlanResult), args.Error(1)
}
