// Package subscribers holds the library's long-lived event consumers. They
// run in the worker process.
package subscribers

import (
	"context"

	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
)

// ClaimReleaser drops the re-parse claim held for a source.
// *cache.ReparseTracker implements it.
type ClaimReleaser interface {
	Finish(ctx context.Context, sourceID string) error
}

// Registrar is implemented by *events.Listener.
type Registrar interface {
	Register(ctx context.Context, kind events.Kind, h *events.Handler, opts events.Options) error
}

// BookCreated handles library.book.BookCreatedEvent. A materialized book ends
// any re-parse of its source, so the claim is released even if the upload
// that held it already gave up. Failures are retried by requeueing.
func BookCreated(claims ClaimReleaser, log logger.Logger) *events.Handler {
	return events.Typed("library.book_created", func(ctx context.Context, e *libevents.BookCreatedEvent) error {
		if claims != nil {
			if err := claims.Finish(ctx, e.SourceID); err != nil {
				return err
			}
		}
		log.InfoContext(ctx, "book created",
			"book_id", e.BookID, "source_id", e.SourceID, "pages", len(e.Pages))
		return nil
	})
}

// Register starts the library consumers on l. Each consumer shares its queue
// with the same consumer in other worker instances.
func Register(ctx context.Context, l Registrar, claims ClaimReleaser, log logger.Logger) error {
	opts := events.Options{Exclusive: true, Ack: events.AckOnSuccess}
	if err := l.Register(ctx, libevents.KindBookCreated, BookCreated(claims, log), opts); err != nil {
		return err
	}
	log.Info("library subscribers registered", "routing_keys", []string{libevents.KindBookCreated.RoutingKey()})
	return nil
}
