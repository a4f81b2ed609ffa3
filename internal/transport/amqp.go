package transport

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport is a Transport backed by an AMQP 0-9-1 broker. Each topic maps
// to a fanout exchange; subscriptions bind an exclusive, broker-named queue to
// the topic's exchange.
type AMQPTransport struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
	closed   bool
}

// NewAMQPTransport dials the broker and opens a channel. An unreachable broker
// is a startup-fatal condition for callers.
func NewAMQPTransport(url string) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPTransport{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]bool),
	}, nil
}

// declareExchange declares the fanout exchange for a topic once per transport.
func (t *AMQPTransport) declareExchange(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.declared[topic] {
		return nil
	}
	err := t.ch.ExchangeDeclare(topic, "fanout", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	t.declared[topic] = true
	return nil
}

// Publish implements Transport.Publish.
func (t *AMQPTransport) Publish(ctx context.Context, topic string, body []byte) error {
	if err := t.declareExchange(topic); err != nil {
		return err
	}
	err := t.ch.PublishWithContext(ctx, topic, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Transport.Subscribe.
func (t *AMQPTransport) Subscribe(ctx context.Context, topic string) (<-chan Delivery, error) {
	if err := t.declareExchange(topic); err != nil {
		return nil, err
	}

	q, err := t.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue for %s: %w", topic, err)
	}
	if err := t.ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue for %s: %w", topic, err)
	}
	deliveries, err := t.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", topic, err)
	}

	out := make(chan Delivery, subscriberBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Delivery{Topic: topic, Body: d.Body}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Transport.Close.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.ch.Close(); err != nil {
		_ = t.conn.Close()
		return err
	}
	return t.conn.Close()
}
