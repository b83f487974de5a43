// Package broker is the process-wide handle to the message broker.
//
// All domain traffic goes through a single durable direct exchange named
// "domain". Publishers address messages by routing key; consumers bind a queue
// to the routing keys they care about:
//
//   - a named durable queue is shared by every consumer that binds it, and each
//     message is handed to exactly one of them (competing consumers);
//   - an anonymous auto-delete queue belongs to a single consumer, so every
//     anonymous consumer of a routing key sees every message (broadcast).
//
// Two drivers exist: RabbitChannel (AMQP 0-9-1, production) and MemoryChannel
// (Watermill GoChannel, single process, for development and tests).
package broker

import (
	"context"
	"errors"
)

// Exchange is the name of the durable direct exchange every message goes through.
const Exchange = "domain"

var (
	// ErrClosed is returned by operations on a channel that has been closed.
	ErrClosed = errors.New("broker: channel closed")
	// ErrNotSetup is returned when Publish or Subscribe runs before Setup.
	ErrNotSetup = errors.New("broker: channel not set up")
	// ErrUnknownConsumer is returned by Cancel for a tag it never issued.
	ErrUnknownConsumer = errors.New("broker: unknown consumer tag")
)

// Message is an outgoing message. Headers carry trace context and other
// metadata; they are never interpreted by the broker.
type Message struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Delivery is a message handed to a consumer. For manual-ack subscriptions
// exactly one of Ack or Nack must be called; for auto-ack subscriptions both
// are no-ops.
type Delivery struct {
	Message
	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a delivery with the given settlement callbacks. Nil
// callbacks are treated as no-ops.
func NewDelivery(msg Message, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Message: msg, ack: ack, nack: nack}
}

// Ack confirms the delivery so the broker forgets it.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery. With requeue the broker redelivers it later,
// otherwise it is dropped.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Queue describes the queue a subscription consumes from. An empty Name asks
// the broker for an anonymous queue private to the subscription.
type Queue struct {
	Name       string
	Durable    bool
	AutoDelete bool
}

// Anonymous reports whether the queue is private to one subscription.
func (q Queue) Anonymous() bool { return q.Name == "" }

// Subscription is an active consumer. Deliveries is closed after the consumer
// is cancelled or the channel is closed.
type Subscription struct {
	Tag string
	// Queue is the queue actually consumed from; for anonymous queues it is
	// the name the broker generated.
	Queue      string
	Deliveries <-chan Delivery
}

// Channel is the broker handle shared by dispatchers and listeners.
type Channel interface {
	// Setup declares the exchange. It is idempotent.
	Setup(ctx context.Context) error
	// Publish sends msg to the exchange as a persistent message.
	Publish(ctx context.Context, msg Message) error
	// Subscribe declares q, binds it to routingKey and starts a consumer on it.
	Subscribe(ctx context.Context, q Queue, routingKey string, autoAck bool) (Subscription, error)
	// Cancel stops the consumer identified by tag.
	Cancel(ctx context.Context, tag string) error
	Ping(ctx context.Context) error
	Close() error
}
