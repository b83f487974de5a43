// Package outbox is the durable delivery path for domain events, built on
// Watermill's SQL transport and Forwarder component.
//
// Stage writes events into the outbox table inside the caller's transaction,
// so they exist if and only if the business change commits. The forwarder
// (started with Run, usually in the worker process) drains the table and
// publishes each message to the broker under its original routing key,
// acknowledging it only after the broker accepted it.
//
// OTel trace context is injected into message metadata on Stage and carried
// through to the broker headers.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
)

const (
	// Topic is the internal SQL topic the forwarder drains.
	Topic           = "_library_outbox"
	consumerGroup   = "outbox-forwarder"
	shutdownTimeout = 30 * time.Second
)

// Outbox stages events in PostgreSQL and forwards them to the broker.
type Outbox struct {
	db   *sql.DB
	log  logger.Logger
	wlog watermill.LoggerAdapter

	mu  sync.Mutex
	fwd *forwarder.Forwarder
	wg  sync.WaitGroup
}

func New(db *database.Database, log logger.Logger) *Outbox {
	return &Outbox{db: db.DB(), log: log, wlog: logger.Watermill(log)}
}

func (o *Outbox) newSubscriber() (*watermillsql.Subscriber, error) {
	sub, err := watermillsql.NewSubscriber(
		o.db,
		watermillsql.SubscriberConfig{
			SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
			ConsumerGroup:    consumerGroup,
		},
		o.wlog,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox: new subscriber: %w", err)
	}
	return sub, nil
}

// Initialize creates the outbox and offsets tables. Stage never creates
// tables because it runs inside business transactions.
func (o *Outbox) Initialize(context.Context) error {
	sub, err := o.newSubscriber()
	if err != nil {
		return err
	}
	defer sub.Close() //nolint:errcheck

	if err := sub.SubscribeInitialize(Topic); err != nil {
		return fmt.Errorf("outbox: initialize schema: %w", err)
	}
	return nil
}

// Stage writes evts to the outbox using tx. Events with an empty channel or
// type name are logged and skipped, matching the direct dispatcher.
func (o *Outbox) Stage(ctx context.Context, tx *sql.Tx, evts []events.Event) error {
	pub, err := watermillsql.NewPublisher(
		tx,
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: false,
		},
		o.wlog,
	)
	if err != nil {
		return fmt.Errorf("outbox: new tx publisher: %w", err)
	}
	fwdPub := forwarder.NewPublisher(pub, forwarder.PublisherConfig{ForwarderTopic: Topic})

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for _, e := range evts {
		key, body, err := events.Encode(e)
		if err != nil {
			o.log.ErrorContext(ctx, "outbox: skipping invalid event", "error", err)
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), body)
		msg.SetContext(ctx)
		for k, v := range carrier {
			msg.Metadata.Set(k, v)
		}
		if err := fwdPub.Publish(key, msg); err != nil {
			return fmt.Errorf("outbox: stage %s: %w", key, err)
		}
	}
	return nil
}

// Run starts the forwarder that relays staged messages to target. It returns
// once the forwarder is running; the forwarder stops when ctx is cancelled or
// Close is called.
func (o *Outbox) Run(ctx context.Context, target message.Publisher) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fwd != nil {
		return fmt.Errorf("outbox: forwarder already started")
	}

	sub, err := o.newSubscriber()
	if err != nil {
		return err
	}

	fwd, err := forwarder.NewForwarder(sub, target, o.wlog, forwarder.Config{
		ForwarderTopic: Topic,
	})
	if err != nil {
		_ = sub.Close()
		return fmt.Errorf("outbox: create forwarder: %w", err)
	}
	o.fwd = fwd

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.log.InfoContext(ctx, "outbox: forwarder started")
		if err := fwd.Run(ctx); err != nil {
			o.log.ErrorContext(ctx, "outbox: forwarder stopped with error", "error", err)
		} else {
			o.log.InfoContext(ctx, "outbox: forwarder stopped")
		}
	}()

	select {
	case <-fwd.Running():
	case <-ctx.Done():
		return fmt.Errorf("outbox: context cancelled waiting for forwarder: %w", ctx.Err())
	}
	return nil
}

// Ping checks the outbox database connection.
func (o *Outbox) Ping(ctx context.Context) error {
	if err := o.db.PingContext(ctx); err != nil {
		return fmt.Errorf("outbox: ping db: %w", err)
	}
	return nil
}

// Close stops the forwarder and waits up to 30s for it to exit. The database
// pool is owned by the caller.
func (o *Outbox) Close() error {
	o.mu.Lock()
	fwd := o.fwd
	o.mu.Unlock()
	if fwd == nil {
		return nil
	}
	if err := fwd.Close(); err != nil {
		return fmt.Errorf("outbox: close forwarder: %w", err)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		o.log.Error("outbox: timed out waiting for forwarder to stop")
	}
	return nil
}
