package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errPublisherClosed = errors.New("rabbitmq publisher closed")

// RabbitPublisher publishes outbox messages to a fanout exchange with
// publisher confirms, so a message only counts as sent once the broker
// has taken responsibility for it.
//
// A lost connection is redialed on the next Notify. Until then the sink
// fails and the relay retries the message.
type RabbitPublisher struct {
	url      string
	exchange string
	dial     func(url string) (*amqp.Connection, error)
	logger   *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// NewRabbitPublisher connects eagerly so a bad URL fails startup.
func NewRabbitPublisher(url, exchange string, logger *slog.Logger) (*RabbitPublisher, error) {
	p := newRabbitPublisher(url, exchange, amqp.Dial, logger)
	if _, err := p.connection(); err != nil {
		return nil, err
	}
	return p, nil
}

func newRabbitPublisher(url, exchange string, dial func(string) (*amqp.Connection, error), logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		url:      url,
		exchange: exchange,
		dial:     dial,
		logger:   logger,
	}
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

// connection returns the live connection, dialing a new one when there is
// none or the previous one was closed.
func (p *RabbitPublisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errPublisherClosed
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	if err := declareExchange(conn, p.exchange); err != nil {
		conn.Close()
		return nil, err
	}

	lost := conn.NotifyClose(make(chan *amqp.Error, 1))
	go p.watch(conn, lost)

	p.conn = conn
	return conn, nil
}

// watch forgets conn once the broker or the network closes it.
func (p *RabbitPublisher) watch(conn *amqp.Connection, lost <-chan *amqp.Error) {
	if amqpErr, ok := <-lost; ok && amqpErr != nil {
		p.logger.Warn("rabbitmq connection lost", "error", amqpErr, "exchange", p.exchange)
	}
	p.drop(conn)
}

func (p *RabbitPublisher) drop(conn *amqp.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.conn = nil
	}
}

func declareExchange(conn *amqp.Connection, exchange string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return nil
}

func (p *RabbitPublisher) Notify(ctx context.Context, msg domain.OutboxMessage) error {
	conn, err := p.connection()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		p.drop(conn)
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enabling publisher confirms: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Topic,
		Timestamp:    msg.CreatedAt,
		Body:         msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", msg.ID, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm of %s: %w", msg.ID, err)
	}
	if !acked {
		return errors.New("broker nacked message " + msg.ID)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn == nil {
		return nil
	}
	conn := p.conn
	p.conn = nil
	return conn.Close()
}
