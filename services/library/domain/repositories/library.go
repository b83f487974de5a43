package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain/models"
)

// The domain layer owns these interfaces; infrastructure implements them.
//
// Every method takes the active unit-of-work session, or nil to run outside
// a transaction. Reads inside a session lock the returned rows (SELECT ...
// FOR UPDATE) so a read followed by a conditional write cannot lose an
// update. Saving an aggregate inside a session moves its pending events into
// the session.

// BookRepository persists the Book aggregate.
type BookRepository interface {
	// FindByID returns domain.ErrBookNotFound when no book has the given ID.
	FindByID(ctx context.Context, s *uow.Session, id uuid.UUID) (*models.Book, error)

	// FindBySourceID returns domain.ErrBookNotFound when the source was never
	// materialized.
	FindBySourceID(ctx context.Context, s *uow.Session, sourceID string) (*models.Book, error)

	// Save inserts a new book with its ordered page references. A second book
	// for the same source fails with domain.ErrBookAlreadyExists. The book's
	// BookCreated event leaves with the session, so s must not be nil
	// (uow.ErrNoSession).
	Save(ctx context.Context, s *uow.Session, book *models.Book) error
}

// PageRepository persists the Page aggregate.
type PageRepository interface {
	Save(ctx context.Context, s *uow.Session, page *models.Page) error
}

// SessionFilter selects a live (not deleted) session.
type SessionFilter struct {
	UserID uuid.UUID
	BookID uuid.UUID
}

// SessionRepository persists the Session aggregate. Deleted sessions are
// invisible to every finder.
type SessionRepository interface {
	// FindByID returns domain.ErrSessionNotFound when the session does not
	// exist or was deleted.
	FindByID(ctx context.Context, s *uow.Session, id uuid.UUID) (*models.Session, error)

	// FindOne returns the live session matching f, or domain.ErrSessionNotFound.
	FindOne(ctx context.Context, s *uow.Session, f SessionFilter) (*models.Session, error)

	// Save inserts or updates the session.
	Save(ctx context.Context, s *uow.Session, session *models.Session) error
}
