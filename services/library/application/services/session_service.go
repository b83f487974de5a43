package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/domain/repositories"
)

// SessionService changes reading sessions. Every operation runs in a unit of
// work and locks the session row it reads before writing it back.
type SessionService struct {
	uow      Transactor
	books    repositories.BookRepository
	sessions repositories.SessionRepository
	now      func() time.Time
}

func NewSessionService(tx Transactor, books repositories.BookRepository, sessions repositories.SessionRepository) *SessionService {
	return &SessionService{uow: tx, books: books, sessions: sessions, now: time.Now}
}

// Clone gives userID their own copy of a shared session. Cloning one's own
// session returns it unchanged.
func (s *SessionService) Clone(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	var view *SessionView
	err := s.uow.Do(ctx, func(ctx context.Context, tx *uow.Session) error {
		src, err := s.sessions.FindByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		book, err := s.books.FindByID(ctx, tx, src.BookID)
		if err != nil {
			return fmt.Errorf("find book: %w", err)
		}
		if src.UserID == userID {
			view = newSessionView(src, book)
			return nil
		}

		clone := src.Clone(userID, book, s.now())
		if err := s.sessions.Save(ctx, tx, clone); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		view = newSessionView(clone, book)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// OpenPage moves the reader's session to page number.
func (s *SessionService) OpenPage(ctx context.Context, userID, sessionID uuid.UUID, number int) (*SessionView, error) {
	var view *SessionView
	err := s.modify(ctx, userID, sessionID, func(sess *models.Session) error {
		return sess.SetCurrentPage(number, s.now())
	}, func(sess *models.Session, book *models.Book) {
		view = newSessionView(sess, book)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *SessionService) Finish(ctx context.Context, userID, sessionID uuid.UUID) error {
	return s.modify(ctx, userID, sessionID, func(sess *models.Session) error {
		return sess.Finish(s.now())
	}, nil)
}

func (s *SessionService) Restart(ctx context.Context, userID, sessionID uuid.UUID) error {
	return s.modify(ctx, userID, sessionID, func(sess *models.Session) error {
		return sess.Restart(s.now())
	}, nil)
}

// Delete soft-deletes the session; it disappears from every finder.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID uuid.UUID) error {
	return s.modify(ctx, userID, sessionID, func(sess *models.Session) error {
		return sess.Delete(s.now())
	}, nil)
}

// modify loads the reader's live session under a row lock, applies change and
// saves it. Sessions of other readers are reported as not found.
func (s *SessionService) modify(
	ctx context.Context,
	userID, sessionID uuid.UUID,
	change func(*models.Session) error,
	done func(*models.Session, *models.Book),
) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx *uow.Session) error {
		sess, err := s.sessions.FindByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return domain.ErrSessionNotFound
		}
		if err := change(sess); err != nil {
			return err
		}
		if err := s.sessions.Save(ctx, tx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if done == nil {
			return nil
		}
		book, err := s.books.FindByID(ctx, tx, sess.BookID)
		if err != nil {
			return fmt.Errorf("find book: %w", err)
		}
		done(sess, book)
		return nil
	})
}
