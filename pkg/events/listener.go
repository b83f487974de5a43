package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// AckMode controls when a delivery is acknowledged.
type AckMode int

const (
	// AckAutomatic acknowledges on receipt; a failing handler loses the message.
	AckAutomatic AckMode = iota
	// AckOnSuccess acknowledges after the handler succeeds and requeues the
	// message when it fails.
	AckOnSuccess
	// AckOnFinish acknowledges after the handler returns, whatever the outcome.
	AckOnFinish
)

func (m AckMode) String() string {
	switch m {
	case AckOnSuccess:
		return "ON_SUCCESS"
	case AckOnFinish:
		return "ON_FINISH"
	default:
		return "AUTOMATIC"
	}
}

// Options configure a registration.
//
// An exclusive registration consumes from a durable queue named after the
// routing key, shared by every exclusive registration of that kind across all
// processes: each message reaches one of them. A non-exclusive registration
// gets its own auto-delete queue and sees every message.
type Options struct {
	Exclusive bool
	Ack       AckMode
}

func (o Options) queue(kind Kind) broker.Queue {
	if o.Exclusive {
		return broker.Queue{Name: kind.RoutingKey(), Durable: true}
	}
	return broker.Queue{AutoDelete: true}
}

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, e Event) error

// Handler is a registrable event handler. Registrations are keyed by the
// *Handler pointer, so keep the pointer to unregister it later.
type Handler struct {
	name string
	fn   HandlerFunc
}

func NewHandler(name string, fn HandlerFunc) *Handler {
	return &Handler{name: name, fn: fn}
}

// Typed wraps a handler for a concrete event type. T is usually a pointer to
// the payload struct registered in the Registry.
func Typed[T Event](name string, fn func(ctx context.Context, e T) error) *Handler {
	return NewHandler(name, func(ctx context.Context, e Event) error {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("%w: handler %s cannot accept %T", ErrMalformedMessage, name, e)
		}
		return fn(ctx, typed)
	})
}

func (h *Handler) Name() string { return h.name }

type registration struct {
	tag  string
	opts Options
}

// bucket holds the registrations of one kind. Its mutex serializes register
// and unregister for that kind only.
type bucket struct {
	mu   sync.Mutex
	regs map[*Handler]registration
}

// Listener subscribes handlers to event kinds.
type Listener struct {
	ch  broker.Channel
	reg *Registry
	log logger.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	buckets map[Kind]*bucket
	wg      sync.WaitGroup

	delivered     metric.Int64Counter
	handlerFailed metric.Int64Counter
	malformed     metric.Int64Counter
}

func NewListener(ch broker.Channel, reg *Registry, log logger.Logger) *Listener {
	meter := otel.Meter(meterName)
	delivered, _ := meter.Int64Counter("events.delivered",
		metric.WithDescription("Deliveries handed to a handler"))
	handlerFailed, _ := meter.Int64Counter("events.handler_failed",
		metric.WithDescription("Handler invocations that returned an error or panicked"))
	malformed, _ := meter.Int64Counter("events.malformed",
		metric.WithDescription("Deliveries dropped because they could not be decoded"))

	ctx, stop := context.WithCancel(context.Background())
	return &Listener{
		ch:            ch,
		reg:           reg,
		log:           log,
		ctx:           ctx,
		stop:          stop,
		buckets:       make(map[Kind]*bucket),
		delivered:     delivered,
		handlerFailed: handlerFailed,
		malformed:     malformed,
	}
}

func (l *Listener) bucket(kind Kind) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[kind]
	if !ok {
		b = &bucket{regs: make(map[*Handler]registration)}
		l.buckets[kind] = b
	}
	return b
}

// Register starts delivering events of kind to h. Registering the same
// handler twice for one kind fails with ErrDuplicateHandler.
func (l *Listener) Register(ctx context.Context, kind Kind, h *Handler, opts Options) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, kind.RoutingKey())
	}
	if _, ok := l.reg.lookup(kind); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	b := l.bucket(kind)
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.regs[h]; ok {
		return fmt.Errorf("%w: %s for %s (consumer %s)", ErrDuplicateHandler, h.name, kind, existing.tag)
	}

	autoAck := opts.Ack == AckAutomatic
	sub, err := l.ch.Subscribe(ctx, opts.queue(kind), kind.RoutingKey(), autoAck)
	if err != nil {
		return fmt.Errorf("events: register %s for %s: %w", h.name, kind, err)
	}
	b.regs[h] = registration{tag: sub.Tag, opts: opts}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for d := range sub.Deliveries {
			l.wg.Add(1)
			go func(d broker.Delivery) {
				defer l.wg.Done()
				l.handle(kind, h, opts, d)
			}(d)
		}
	}()

	l.log.DebugContext(ctx, "events: handler registered",
		"handler", h.name,
		"routing_key", kind.RoutingKey(),
		"exclusive", opts.Exclusive,
		"ack", opts.Ack.String(),
		"consumer_tag", sub.Tag,
	)
	return nil
}

// Unregister stops delivering events of kind to h. It is a no-op when h is
// not registered. The registration is forgotten even if cancelling the
// consumer fails; the error is still returned.
func (l *Listener) Unregister(ctx context.Context, kind Kind, h *Handler) error {
	l.mu.Lock()
	b, ok := l.buckets[kind]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.regs[h]
	if !ok {
		return nil
	}
	delete(b.regs, h)

	if err := l.ch.Cancel(ctx, r.tag); err != nil {
		return fmt.Errorf("events: unregister %s for %s: %w", h.name, kind, err)
	}
	l.log.DebugContext(ctx, "events: handler unregistered",
		"handler", h.name,
		"routing_key", kind.RoutingKey(),
		"consumer_tag", r.tag,
	)
	return nil
}

// Len returns the number of live registrations across all kinds.
func (l *Listener) Len() int {
	l.mu.Lock()
	buckets := make([]*bucket, 0, len(l.buckets))
	for _, b := range l.buckets {
		buckets = append(buckets, b)
	}
	l.mu.Unlock()

	n := 0
	for _, b := range buckets {
		b.mu.Lock()
		n += len(b.regs)
		b.mu.Unlock()
	}
	return n
}

func (l *Listener) handle(kind Kind, h *Handler, opts Options, d broker.Delivery) {
	carrier := propagation.MapCarrier{}
	for k, v := range d.Headers {
		carrier[k] = v
	}
	ctx := otel.GetTextMapPropagator().Extract(l.ctx, carrier)
	manual := opts.Ack != AckAutomatic

	payload, matched, err := decodeEnvelope(kind, d.Body)
	if err == nil && !matched {
		l.log.WarnContext(ctx, "events: unexpected event type on routing key",
			"routing_key", kind.RoutingKey(), "handler", h.name)
		l.drop(ctx, kind, d, manual)
		return
	}
	var e Event
	if err == nil {
		e, err = decodePayload(l.reg, kind, payload)
	}
	if err != nil {
		l.log.ErrorContext(ctx, "events: malformed message",
			"routing_key", kind.RoutingKey(), "handler", h.name, "error", err)
		l.drop(ctx, kind, d, manual)
		return
	}

	l.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("routing_key", kind.RoutingKey())))
	err = l.invoke(ctx, h, e)
	if err != nil {
		l.handlerFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("routing_key", kind.RoutingKey())))
		l.log.ErrorContext(ctx, "events: handler failed",
			"routing_key", kind.RoutingKey(), "handler", h.name, "error", err)
	}

	var settleErr error
	switch opts.Ack {
	case AckOnSuccess:
		if err == nil {
			settleErr = d.Ack()
		} else {
			settleErr = d.Nack(true)
		}
	case AckOnFinish:
		settleErr = d.Ack()
	}
	if settleErr != nil {
		l.log.ErrorContext(ctx, "events: settle delivery failed",
			"routing_key", kind.RoutingKey(), "handler", h.name, "error", settleErr)
	}
}

func (l *Listener) drop(ctx context.Context, kind Kind, d broker.Delivery, manual bool) {
	l.malformed.Add(ctx, 1, metric.WithAttributes(attribute.String("routing_key", kind.RoutingKey())))
	if !manual {
		return
	}
	if err := d.Nack(false); err != nil {
		l.log.ErrorContext(ctx, "events: reject delivery failed", "routing_key", kind.RoutingKey(), "error", err)
	}
}

func (l *Listener) invoke(ctx context.Context, h *Handler, e Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			l.log.ErrorContext(ctx, "events: handler panicked",
				"handler", h.name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("events: handler %s panicked: %v", h.name, p)
		}
	}()
	return h.fn(ctx, e)
}

// Close cancels every consumer and waits up to 30s for in-flight handlers.
func (l *Listener) Close() error {
	l.mu.Lock()
	var tags []string
	for _, b := range l.buckets {
		b.mu.Lock()
		for h, r := range b.regs {
			tags = append(tags, r.tag)
			delete(b.regs, h)
		}
		b.mu.Unlock()
	}
	l.mu.Unlock()

	for _, tag := range tags {
		if err := l.ch.Cancel(context.Background(), tag); err != nil {
			l.log.Warn("events: cancel consumer on close failed", "consumer_tag", tag, "error", err)
		}
	}
	l.stop()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		l.log.Error("events: timed out waiting for in-flight handlers to complete")
	}
	return nil
}
