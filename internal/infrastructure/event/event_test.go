package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) IssueRaised(ctx context.Context, issue *channel.Issue) error {
	args := m.Called(ctx, issue)
	return args.Error(0)
}

type panickingNotifier struct{}

func (panickingNotifier) IssueRaised(context.Context, *channel.Issue) error {
	panic("boom")
}

type fakeConn struct{ closed int }

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     int
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

func sampleIssue() *channel.Issue {
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	return channel.NewIssue("booking", channel.SectionAvailability, "room type is not exported").
		WithInternal(uuid.New()).
		WithDates(channel.DateRange{From: from, To: to})
}

func TestNewIssueRaisedEvent(t *testing.T) {
	issue := sampleIssue().WithExternal("R-9")
	ev := NewIssueRaisedEvent(issue)

	assert.Equal(t, IssueRaisedEventType, ev.EventType)
	assert.Equal(t, issue.ID, ev.IssueID)
	assert.Equal(t, "availability", ev.Section)
	assert.Equal(t, "2026-07-01", ev.DateFrom)
	assert.Equal(t, "2026-07-03", ev.DateTo)

	body, err := ev.Marshal()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "R-9", decoded["external_id"])
	assert.NotContains(t, decoded, "channel_message")
}

func TestBroadcaster_DeliversToAll(t *testing.T) {
	issue := sampleIssue()
	first := new(MockNotifier)
	first.On("IssueRaised", mock.Anything, issue).Return(errors.New("smtp down")).Once()
	second := new(MockNotifier)
	second.On("IssueRaised", mock.Anything, issue).Return(nil).Once()

	b := NewBroadcaster(zap.NewNop())
	b.Subscribe(first)
	b.Subscribe(panickingNotifier{})
	b.Subscribe(second)
	b.Subscribe(NewLogNotifier(zap.NewNop()))
	assert.Equal(t, 4, b.Len())

	err := b.IssueRaised(context.Background(), issue)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Contains(t, err.Error(), "panicked")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestBroadcaster_Empty(t *testing.T) {
	assert.NoError(t, NewBroadcaster(zap.NewNop()).IssueRaised(context.Background(), sampleIssue()))
}

func newFakeAMQP(t *testing.T) (*AMQPNotifier, *[]*fakeChannel) {
	t.Helper()
	var channels []*fakeChannel
	n := NewAMQPNotifier(AMQPConfig{URL: "amqp://test", Exchange: "pms.channel"}, zap.NewNop())
	n.dial = func(string) (io.Closer, amqpChannel, error) {
		ch := &fakeChannel{}
		channels = append(channels, ch)
		return &fakeConn{}, ch, nil
	}
	return n, &channels
}

func TestAMQPNotifier_Publishes(t *testing.T) {
	n, channels := newFakeAMQP(t)
	issue := sampleIssue()

	require.NoError(t, n.IssueRaised(context.Background(), issue))
	require.NoError(t, n.IssueRaised(context.Background(), sampleIssue()))

	require.Len(t, *channels, 1)
	ch := (*channels)[0]
	assert.Equal(t, []string{"pms.channel:topic"}, ch.declared)
	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{IssueRaisedEventType, IssueRaisedEventType}, ch.keys)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	var ev IssueRaisedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, issue.ID, ev.IssueID)
	assert.Equal(t, ev.EventID.String(), msg.MessageId)
}

func TestAMQPNotifier_RedialsAfterFailure(t *testing.T) {
	n, channels := newFakeAMQP(t)
	require.NoError(t, n.IssueRaised(context.Background(), sampleIssue()))

	(*channels)[0].publishErr = amqp.ErrClosed
	err := n.IssueRaised(context.Background(), sampleIssue())
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, 1, (*channels)[0].closed)

	require.NoError(t, n.IssueRaised(context.Background(), sampleIssue()))
	require.Len(t, *channels, 2)
	assert.Len(t, (*channels)[1].published, 1)
	assert.NoError(t, n.Close())
}

func TestAMQPNotifier_DialFailure(t *testing.T) {
	n := NewAMQPNotifier(AMQPConfig{Exchange: "pms.channel"}, zap.NewNop())
	n.dial = func(string) (io.Closer, amqpChannel, error) {
		return nil, nil, errors.New("connection refused")
	}
	err := n.IssueRaised(context.Background(), sampleIssue())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
