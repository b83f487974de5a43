package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ghuser/bookreader/pkg/logger"
)

const (
	exchangeKind    = "direct"
	defaultPrefetch = 10
	contentTypeJSON = "application/json"
)

// RabbitChannel is the AMQP 0-9-1 driver. It holds one connection with two
// channels: publishing never shares a channel with consumers, so a slow
// consumer cannot stall publishers.
type RabbitChannel struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	sub  *amqp.Channel
	log  logger.Logger

	mu        sync.Mutex
	ready     bool
	closed    bool
	consumers map[string]struct{}
	wg        sync.WaitGroup
}

// DialRabbit connects to url and opens the publish and consume channels.
func DialRabbit(url string, log logger.Logger) (*RabbitChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open publish channel: %w", err)
	}

	sub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open consume channel: %w", err)
	}
	if err := sub.Qos(defaultPrefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: set qos: %w", err)
	}

	return &RabbitChannel{
		conn:      conn,
		pub:       pub,
		sub:       sub,
		log:       log,
		consumers: make(map[string]struct{}),
	}, nil
}

// Setup declares the durable direct exchange. Redeclaring with the same
// arguments is a no-op on the broker side.
func (c *RabbitChannel) Setup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	err := c.pub.ExchangeDeclare(
		Exchange,     // name
		exchangeKind, // type
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("broker: declare exchange %s: %w", Exchange, err)
	}
	if !c.ready {
		c.log.InfoContext(ctx, "broker: exchange declared", "exchange", Exchange, "kind", exchangeKind)
	}
	c.ready = true
	return nil
}

// Publish sends msg with persistent delivery mode.
func (c *RabbitChannel) Publish(ctx context.Context, msg Message) error {
	if err := c.usable(); err != nil {
		return err
	}

	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	err := c.pub.PublishWithContext(ctx,
		Exchange,       // exchange
		msg.RoutingKey, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("broker: publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// Subscribe declares q, binds it to routingKey on the exchange and starts a
// consumer. Anonymous queues are declared exclusive to this connection.
func (c *RabbitChannel) Subscribe(ctx context.Context, q Queue, routingKey string, autoAck bool) (Subscription, error) {
	if err := c.usable(); err != nil {
		return Subscription{}, err
	}

	declared, err := c.sub.QueueDeclare(
		q.Name,        // name, empty lets the broker generate one
		q.Durable,     // durable
		q.AutoDelete,  // auto-delete
		q.Anonymous(), // exclusive
		false,         // no-wait
		nil,
	)
	if err != nil {
		return Subscription{}, fmt.Errorf("broker: declare queue %q: %w", q.Name, err)
	}

	if err := c.sub.QueueBind(declared.Name, routingKey, Exchange, false, nil); err != nil {
		return Subscription{}, fmt.Errorf("broker: bind %s to %s: %w", declared.Name, routingKey, err)
	}

	tag := "ctag-" + uuid.NewString()
	src, err := c.sub.Consume(
		declared.Name, // queue
		tag,           // consumer tag
		autoAck,       // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,
	)
	if err != nil {
		return Subscription{}, fmt.Errorf("broker: consume %s: %w", declared.Name, err)
	}

	c.mu.Lock()
	c.consumers[tag] = struct{}{}
	c.mu.Unlock()

	out := make(chan Delivery)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		for d := range src {
			out <- toDelivery(d, autoAck)
		}
	}()

	c.log.DebugContext(ctx, "broker: consumer started",
		"queue", declared.Name,
		"routing_key", routingKey,
		"consumer_tag", tag,
	)
	return Subscription{Tag: tag, Queue: declared.Name, Deliveries: out}, nil
}

func toDelivery(d amqp.Delivery, autoAck bool) Delivery {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	msg := Message{RoutingKey: d.RoutingKey, Body: d.Body, Headers: headers}
	if autoAck {
		return NewDelivery(msg, nil, nil)
	}
	return NewDelivery(msg,
		func() error { return d.Ack(false) },
		func(requeue bool) error { return d.Nack(false, requeue) },
	)
}

// Cancel stops the consumer. The broker closes its delivery stream, which in
// turn closes the subscription's Deliveries channel.
func (c *RabbitChannel) Cancel(_ context.Context, tag string) error {
	c.mu.Lock()
	if _, ok := c.consumers[tag]; !ok {
		c.mu.Unlock()
		return ErrUnknownConsumer
	}
	delete(c.consumers, tag)
	c.mu.Unlock()

	if err := c.sub.Cancel(tag, false); err != nil {
		return fmt.Errorf("broker: cancel %s: %w", tag, err)
	}
	return nil
}

// Ping reports whether the connection and both channels are still open. A
// channel-level exception closes only the channel, leaving the connection up
// while every consumer on it has stopped.
func (c *RabbitChannel) Ping(_ context.Context) error {
	if c.conn.IsClosed() || c.pub.IsClosed() || c.sub.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close closes both channels and the connection, then waits for the
// delivery pumps to drain.
func (c *RabbitChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.sub.Close()
	_ = c.pub.Close()
	err := c.conn.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("broker: close connection: %w", err)
	}
	return nil
}

func (c *RabbitChannel) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.ready {
		return ErrNotSetup
	}
	return nil
}
