package broker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/logger"
)

func newChannel(t *testing.T) *broker.MemoryChannel {
	t.Helper()
	ch := broker.NewMemoryChannel(logger.New(&config.Config{LogLevel: "error"}))
	if err := ch.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func receive(t *testing.T, sub broker.Subscription) broker.Delivery {
	t.Helper()
	select {
	case d, ok := <-sub.Deliveries:
		if !ok {
			t.Fatal("deliveries closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return broker.Delivery{}
}

func expectNone(t *testing.T, sub broker.Subscription) {
	t.Helper()
	select {
	case d, ok := <-sub.Deliveries:
		if ok {
			t.Fatalf("unexpected delivery %q", d.Body)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryChannel_PublishBeforeSetup(t *testing.T) {
	ch := broker.NewMemoryChannel(logger.New(&config.Config{LogLevel: "error"}))
	defer ch.Close() //nolint:errcheck

	err := ch.Publish(context.Background(), broker.Message{RoutingKey: "a.b"})
	if !errors.Is(err, broker.ErrNotSetup) {
		t.Fatalf("expected ErrNotSetup, got %v", err)
	}
}

func TestMemoryChannel_SetupIsIdempotent(t *testing.T) {
	ch := newChannel(t)
	if err := ch.Setup(context.Background()); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
}

func TestMemoryChannel_AnonymousQueuesBroadcast(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "library.book.X", true)
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "library.book.X", true)
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	msg := broker.Message{RoutingKey: "library.book.X", Body: []byte(`{"n":1}`), Headers: map[string]string{"traceparent": "tp"}}
	if err := ch.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, sub := range []broker.Subscription{a, b} {
		d := receive(t, sub)
		if string(d.Body) != `{"n":1}` {
			t.Errorf("body: got %s", d.Body)
		}
		if d.RoutingKey != "library.book.X" {
			t.Errorf("routing key: got %q", d.RoutingKey)
		}
		if d.Headers["traceparent"] != "tp" {
			t.Errorf("headers: got %v", d.Headers)
		}
		if _, ok := d.Headers["x-routing-key"]; ok {
			t.Error("internal routing header leaked into delivery")
		}
	}
}

func TestMemoryChannel_RoutingKeyIsolation(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "library.book.A", true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ch.Publish(ctx, broker.Message{RoutingKey: "library.book.B", Body: []byte("b")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	expectNone(t, sub)
}

func TestMemoryChannel_NamedQueueCompetingConsumers(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()
	q := broker.Queue{Name: "library.book.X", Durable: true}

	a, err := ch.Subscribe(ctx, q, "library.book.X", true)
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := ch.Subscribe(ctx, q, "library.book.X", true)
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	const total = 6
	for i := 0; i < total; i++ {
		if err := ch.Publish(ctx, broker.Message{RoutingKey: "library.book.X", Body: []byte{byte(i)}}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	seen := map[byte]int{}
	deadline := time.After(2 * time.Second)
	for len(seen) < total {
		select {
		case d := <-a.Deliveries:
			seen[d.Body[0]]++
		case d := <-b.Deliveries:
			seen[d.Body[0]]++
		case <-deadline:
			t.Fatalf("received %d of %d messages", len(seen), total)
		}
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("message %d delivered %d times", k, n)
		}
	}
	expectNone(t, a)
	expectNone(t, b)
}

func TestMemoryChannel_NackRequeueRedelivers(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "k", false)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ch.Publish(ctx, broker.Message{RoutingKey: "k", Body: []byte("m")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := receive(t, sub)
	if err := first.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	second := receive(t, sub)
	if string(second.Body) != "m" {
		t.Fatalf("redelivered body: got %q", second.Body)
	}
	if err := second.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	expectNone(t, sub)
}

func TestMemoryChannel_NackWithoutRequeueDrops(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "k", false)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ch.Publish(ctx, broker.Message{RoutingKey: "k", Body: []byte("m")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_ = receive(t, sub).Nack(false)
	expectNone(t, sub)
}

func TestMemoryChannel_CancelClosesDeliveries(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "k", true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ch.Cancel(ctx, sub.Tag); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case _, ok := <-sub.Deliveries:
		if ok {
			t.Fatal("expected closed deliveries")
		}
	case <-time.After(time.Second):
		t.Fatal("deliveries not closed after cancel")
	}

	if err := ch.Cancel(ctx, sub.Tag); !errors.Is(err, broker.ErrUnknownConsumer) {
		t.Fatalf("second Cancel: expected ErrUnknownConsumer, got %v", err)
	}
}

func TestMemoryChannel_NamedQueueSurvivesConsumerCancel(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()
	q := broker.Queue{Name: "durable", Durable: true}

	first, err := ch.Subscribe(ctx, q, "k", true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if first.Queue != "durable" {
		t.Fatalf("queue: got %q", first.Queue)
	}
	if err := ch.Cancel(ctx, first.Tag); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := ch.Publish(ctx, broker.Message{RoutingKey: "k", Body: []byte("held")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	second, err := ch.Subscribe(ctx, q, "k", true)
	if err != nil {
		t.Fatalf("re-Subscribe: %v", err)
	}
	if d := receive(t, second); string(d.Body) != "held" {
		t.Fatalf("body: got %q", d.Body)
	}
}

func TestMemoryChannel_ClosedChannelRejects(t *testing.T) {
	ch := broker.NewMemoryChannel(logger.New(&config.Config{LogLevel: "error"}))
	_ = ch.Setup(context.Background())
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Ping(context.Background()); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Ping: expected ErrClosed, got %v", err)
	}
	if err := ch.Publish(context.Background(), broker.Message{RoutingKey: "k"}); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Publish: expected ErrClosed, got %v", err)
	}
}

func TestPublisher_UsesTopicAsRoutingKey(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, "library.book.Y", true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	msg := message.NewMessage("uuid-1", []byte("payload"))
	msg.Metadata.Set("traceparent", "tp")
	if err := broker.NewPublisher(ch).Publish("library.book.Y", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := receive(t, sub)
	if string(d.Body) != "payload" || d.Headers["traceparent"] != "tp" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
}
