// Package transport carries raw messages between the tracker and the message
// bus. The tracker only needs publish and subscribe; connection management,
// exchange declaration, and delivery guarantees belong to the implementation.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a transport that has been closed.
var ErrClosed = errors.New("transport closed")

// Delivery is one raw message received from a subscription.
type Delivery struct {
	Topic string
	Body  []byte
}

// Transport is the message-bus contract. Publish is fire-and-forget: a nil
// return means the message was accepted for delivery, not that any consumer
// received it. Subscribe returns a channel that yields deliveries until ctx is
// cancelled or the transport closes, at which point the channel is closed.
type Transport interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan Delivery, error)
	Close() error
}

// subscriberBuffer is the per-subscription channel capacity for the in-memory
// transport. A subscriber that falls this far behind loses messages, matching
// the fire-and-forget contract.
const subscriberBuffer = 64

// InMemoryTransport is a process-local Transport used in tests and for running
// the tracker without a broker. Every subscriber of a topic receives every
// message published to it.
type InMemoryTransport struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	subs   map[string][]chan Delivery
}

// NewInMemoryTransport returns an empty in-memory transport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		done: make(chan struct{}),
		subs: make(map[string][]chan Delivery),
	}
}

// Publish implements Transport.Publish. The payload is copied so publishers
// may reuse their buffer.
func (t *InMemoryTransport) Publish(_ context.Context, topic string, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	own := make([]byte, len(body))
	copy(own, body)
	for _, ch := range t.subs[topic] {
		select {
		case ch <- Delivery{Topic: topic, Body: own}:
		default:
			// Subscriber too far behind; drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe implements Transport.Subscribe.
func (t *InMemoryTransport) Subscribe(ctx context.Context, topic string) (<-chan Delivery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	ch := make(chan Delivery, subscriberBuffer)
	t.subs[topic] = append(t.subs[topic], ch)

	// Close closes the delivery channels itself, so the watcher only has to
	// unsubscribe on ctx cancellation; t.done keeps it from outliving the
	// transport when the subscriber's context can never be cancelled.
	go func() {
		select {
		case <-ctx.Done():
			t.unsubscribe(topic, ch)
		case <-t.done:
		}
	}()

	return ch, nil
}

func (t *InMemoryTransport) unsubscribe(topic string, ch chan Delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := t.subs[topic]
	for i, c := range subs {
		if c == ch {
			t.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close implements Transport.Close. All subscription channels are closed.
func (t *InMemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	for topic, subs := range t.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(t.subs, topic)
	}
	return nil
}
