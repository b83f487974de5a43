package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/logger"
)

// routingKeyHeader carries the routing key through GoChannel metadata.
const routingKeyHeader = "x-routing-key"

// MemoryChannel is an in-process driver built on Watermill's GoChannel. The
// routing key is used as the GoChannel topic.
//
// GoChannel hands every subscriber its own copy of each message and waits for
// an ack before sending that subscriber the next one, so a manual-ack
// subscription effectively has a prefetch of one. Nack redelivers to the same
// subscriber; a nack without requeue is mapped to an ack, which drops the
// message.
type MemoryChannel struct {
	pubsub *gochannel.GoChannel
	log    logger.Logger
	ctx    context.Context
	stop   context.CancelFunc

	mu        sync.Mutex
	ready     bool
	closed    bool
	named     map[string]*memQueue
	consumers map[string]*memConsumer
	wg        sync.WaitGroup
}

// NewMemoryChannel creates an in-process broker channel.
func NewMemoryChannel(log logger.Logger) *MemoryChannel {
	ctx, stop := context.WithCancel(context.Background())
	return &MemoryChannel{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          false,
		}, logger.Watermill(log)),
		log:       log,
		ctx:       ctx,
		stop:      stop,
		named:     make(map[string]*memQueue),
		consumers: make(map[string]*memConsumer),
	}
}

func (c *MemoryChannel) Setup(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.ready = true
	return nil
}

func (c *MemoryChannel) Publish(_ context.Context, msg Message) error {
	if err := c.usable(); err != nil {
		return err
	}
	wm := message.NewMessage(watermill.NewUUID(), msg.Body)
	for k, v := range msg.Headers {
		wm.Metadata.Set(k, v)
	}
	wm.Metadata.Set(routingKeyHeader, msg.RoutingKey)
	if err := c.pubsub.Publish(msg.RoutingKey, wm); err != nil {
		return fmt.Errorf("broker: publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// Subscribe binds a consumer. Named queues are created once and shared by
// every consumer that subscribes with the same name; their messages are handed
// out round-robin. Anonymous queues get a dedicated GoChannel subscription.
func (c *MemoryChannel) Subscribe(ctx context.Context, q Queue, routingKey string, autoAck bool) (Subscription, error) {
	if err := c.usable(); err != nil {
		return Subscription{}, err
	}

	cons := &memConsumer{
		tag:     "ctag-" + uuid.NewString(),
		autoAck: autoAck,
		out:     make(chan Delivery),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var queue *memQueue
	if q.Anonymous() {
		subCtx, cancel := context.WithCancel(c.ctx)
		msgs, err := c.pubsub.Subscribe(subCtx, routingKey)
		if err != nil {
			cancel()
			return Subscription{}, fmt.Errorf("broker: subscribe %s: %w", routingKey, err)
		}
		queue = newMemQueue(subCtx, msgs, cancel)
		cons.owned = queue
		c.startPump(queue)
	} else {
		queue = c.named[q.Name]
		if queue == nil {
			msgs, err := c.pubsub.Subscribe(c.ctx, routingKey)
			if err != nil {
				return Subscription{}, fmt.Errorf("broker: subscribe %s: %w", routingKey, err)
			}
			queue = newMemQueue(c.ctx, msgs, func() {})
			c.named[q.Name] = queue
			c.startPump(queue)
		}
	}
	queue.add(cons)
	cons.queue = queue
	c.consumers[cons.tag] = cons

	c.log.DebugContext(ctx, "broker: consumer started",
		"queue", q.Name,
		"routing_key", routingKey,
		"consumer_tag", cons.tag,
	)
	name := q.Name
	if q.Anonymous() {
		name = "amq.gen-" + cons.tag
	}
	return Subscription{Tag: cons.tag, Queue: name, Deliveries: cons.out}, nil
}

func (c *MemoryChannel) startPump(q *memQueue) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		q.pump()
	}()
}

func (c *MemoryChannel) Cancel(_ context.Context, tag string) error {
	c.mu.Lock()
	cons, ok := c.consumers[tag]
	if ok {
		delete(c.consumers, tag)
	}
	c.mu.Unlock()
	if !ok {
		return ErrUnknownConsumer
	}

	cons.queue.remove(cons)
	cons.close()
	if cons.owned != nil {
		cons.owned.cancel()
	}
	return nil
}

func (c *MemoryChannel) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Close cancels every consumer and shuts the GoChannel down.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumers := make([]*memConsumer, 0, len(c.consumers))
	for _, cons := range c.consumers {
		consumers = append(consumers, cons)
	}
	c.consumers = map[string]*memConsumer{}
	c.mu.Unlock()

	for _, cons := range consumers {
		cons.close()
	}
	c.stop()
	err := c.pubsub.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("broker: close gochannel: %w", err)
	}
	return nil
}

func (c *MemoryChannel) usable() error {
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

// memQueue fans one GoChannel subscription out to its consumers.
type memQueue struct {
	ctx    context.Context
	msgs   <-chan *message.Message
	cancel context.CancelFunc

	mu        sync.Mutex
	consumers []*memConsumer
	next      int
	wake      chan struct{}
}

func newMemQueue(ctx context.Context, msgs <-chan *message.Message, cancel context.CancelFunc) *memQueue {
	return &memQueue{ctx: ctx, msgs: msgs, cancel: cancel, wake: make(chan struct{}, 1)}
}

func (q *memQueue) add(c *memConsumer) {
	q.mu.Lock()
	q.consumers = append(q.consumers, c)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *memQueue) remove(c *memConsumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.consumers {
		if cur == c {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return
		}
	}
}

func (q *memQueue) pick() *memConsumer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.consumers) == 0 {
		return nil
	}
	q.next %= len(q.consumers)
	c := q.consumers[q.next]
	q.next++
	return c
}

// pump delivers every message to one consumer. A durable queue with no
// consumers holds the message until one subscribes.
func (q *memQueue) pump() {
	for msg := range q.msgs {
		delivered := false
		for !delivered {
			if c := q.pick(); c != nil {
				delivered = c.deliver(msg)
				if delivered || q.ctx.Err() == nil {
					continue
				}
			}
			select {
			case <-q.wake:
			case <-q.ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

type memConsumer struct {
	tag     string
	autoAck bool
	queue   *memQueue
	owned   *memQueue

	out     chan Delivery
	done    chan struct{}
	sending sync.Mutex
	once    sync.Once
}

func (c *memConsumer) deliver(msg *message.Message) bool {
	c.sending.Lock()
	defer c.sending.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}

	headers := make(map[string]string, len(msg.Metadata))
	for k, v := range msg.Metadata {
		if k != routingKeyHeader {
			headers[k] = v
		}
	}
	out := Message{RoutingKey: msg.Metadata.Get(routingKeyHeader), Body: msg.Payload, Headers: headers}

	var d Delivery
	if c.autoAck {
		d = NewDelivery(out, nil, nil)
	} else {
		d = NewDelivery(out,
			func() error { msg.Ack(); return nil },
			func(requeue bool) error {
				if requeue {
					msg.Nack()
				} else {
					msg.Ack()
				}
				return nil
			},
		)
	}

	select {
	case c.out <- d:
		if c.autoAck {
			msg.Ack()
		}
		return true
	case <-c.done:
		return false
	}
}

func (c *memConsumer) close() {
	c.once.Do(func() {
		close(c.done)
		c.sending.Lock()
		close(c.out)
		c.sending.Unlock()
	})
}
