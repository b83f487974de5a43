package events

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/logger"
)

const meterName = "github.com/ghuser/bookreader/pkg/events"

// Dispatcher publishes events to the broker.
type Dispatcher struct {
	ch  broker.Channel
	log logger.Logger

	dispatched metric.Int64Counter
	failed     metric.Int64Counter
}

func NewDispatcher(ch broker.Channel, log logger.Logger) *Dispatcher {
	meter := otel.Meter(meterName)
	dispatched, _ := meter.Int64Counter("events.dispatched",
		metric.WithDescription("Events published to the broker"))
	failed, _ := meter.Int64Counter("events.dispatch_failed",
		metric.WithDescription("Events that could not be encoded or published"))
	return &Dispatcher{ch: ch, log: log, dispatched: dispatched, failed: failed}
}

// Dispatch publishes each event independently as a persistent message routed
// by "<channel>.<typeName>". An event with an empty channel or type name is
// logged and skipped; it does not stop the others. Publish failures are
// collected and returned joined once every event has been attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...Event) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	var errs []error
	for _, e := range evts {
		key, body, err := Encode(e)
		if err != nil {
			d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "invalid")))
			d.log.ErrorContext(ctx, "events: skipping invalid event", "error", err)
			continue
		}

		headers := make(map[string]string, len(carrier))
		for k, v := range carrier {
			headers[k] = v
		}

		if err := d.ch.Publish(ctx, broker.Message{RoutingKey: key, Body: body, Headers: headers}); err != nil {
			d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "publish")))
			d.log.ErrorContext(ctx, "events: publish failed", "routing_key", key, "error", err)
			errs = append(errs, fmt.Errorf("events: dispatch %s: %w", key, err))
			continue
		}
		d.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("routing_key", key)))
		d.log.DebugContext(ctx, "events: dispatched", "routing_key", key)
	}
	return errors.Join(errs...)
}
