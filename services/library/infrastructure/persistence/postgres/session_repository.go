package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/domain/repositories"
	"github.com/ghuser/bookreader/services/library/infrastructure/persistence/postgres/db"
)

// SessionRepository implements repositories.SessionRepository against PostgreSQL.
type SessionRepository struct {
	db *database.Database
}

func NewSessionRepository(database *database.Database) *SessionRepository {
	return &SessionRepository{db: database}
}

// FindByID returns ErrSessionNotFound for missing or deleted sessions.
func (r *SessionRepository) FindByID(ctx context.Context, s *uow.Session, id uuid.UUID) (*models.Session, error) {
	q := queries(r.db, s)
	var (
		row db.Session
		err error
	)
	if s != nil {
		row, err = q.GetSessionByIDForUpdate(ctx, id)
	} else {
		row, err = q.GetSessionByID(ctx, id)
	}
	return toSession(row, err)
}

// FindOne returns the newest live session of the reader for the book.
func (r *SessionRepository) FindOne(ctx context.Context, s *uow.Session, f repositories.SessionFilter) (*models.Session, error) {
	q := queries(r.db, s)
	var (
		row db.Session
		err error
	)
	if s != nil {
		row, err = q.FindLiveSessionForUpdate(ctx, db.FindLiveSessionForUpdateParams{UserID: f.UserID, BookID: f.BookID})
	} else {
		row, err = q.FindLiveSession(ctx, db.FindLiveSessionParams{UserID: f.UserID, BookID: f.BookID})
	}
	return toSession(row, err)
}

func (r *SessionRepository) Save(ctx context.Context, s *uow.Session, session *models.Session) error {
	if err := queries(r.db, s).UpsertSession(ctx, db.UpsertSessionParams{
		ID:          session.ID,
		UserID:      session.UserID,
		BookID:      session.BookID,
		TelegramID:  nullString(session.TelegramID),
		FileName:    nullString(session.FileName),
		Pages:       int32(session.Pages),
		CurrentPage: int32(session.CurrentPage),
		FinishedAt:  nullTime(session.FinishedAt),
		UpdatedAt:   session.UpdatedAt,
		CreatedAt:   session.CreatedAt,
		DeletedAt:   nullTime(session.DeletedAt),
	}); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func toSession(row db.Session, err error) (*models.Session, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &models.Session{
		ID:          row.ID,
		UserID:      row.UserID,
		BookID:      row.BookID,
		TelegramID:  row.TelegramID.String,
		FileName:    row.FileName.String,
		Pages:       int(row.Pages),
		CurrentPage: int(row.CurrentPage),
		FinishedAt:  timePtr(row.FinishedAt),
		UpdatedAt:   row.UpdatedAt.UTC(),
		CreatedAt:   row.CreatedAt.UTC(),
		DeletedAt:   timePtr(row.DeletedAt),
	}, nil
}
