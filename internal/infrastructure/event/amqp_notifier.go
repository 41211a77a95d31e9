package event

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPConfig configures the broker notifier
type AMQPConfig struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (io.Closer, amqpChannel, error)

// AMQPNotifier publishes raised issues to a durable topic exchange.
// The connection is opened on first use and re-opened after a failed publish.
type AMQPNotifier struct {
	config AMQPConfig
	logger *zap.Logger
	dial   dialFunc

	mu   sync.Mutex
	conn io.Closer
	ch   amqpChannel
}

// NewAMQPNotifier creates a broker notifier
func NewAMQPNotifier(config AMQPConfig, logger *zap.Logger) *AMQPNotifier {
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	return &AMQPNotifier{
		config: config,
		logger: logger.Named("amqp"),
		dial:   dialAMQP,
	}
}

func dialAMQP(url string) (io.Closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// IssueRaised implements channel.IssueNotifier
func (n *AMQPNotifier) IssueRaised(ctx context.Context, issue *channel.Issue) error {
	ev := NewIssueRaisedEvent(issue)
	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("amqp: encode issue: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch, err := n.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, n.config.Exchange, IssueRaisedEventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID.String(),
		Type:         ev.EventType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		n.reset()
		return fmt.Errorf("amqp: publish issue %s: %w", issue.ID, err)
	}
	n.logger.Debug("issue published",
		zap.String("issue_id", issue.ID.String()),
		zap.String("exchange", n.config.Exchange),
	)
	return nil
}

func (n *AMQPNotifier) channel() (amqpChannel, error) {
	if n.ch != nil {
		return n.ch, nil
	}
	conn, ch, err := n.dial(n.config.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	if err := ch.ExchangeDeclare(n.config.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", n.config.Exchange, err)
	}
	n.conn, n.ch = conn, ch
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.ch, n.conn = nil, nil
}

// Close releases the broker connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset()
	return nil
}
