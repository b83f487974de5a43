package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/services/library/domain"
)

// Session is one reader's progress through one book.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID // owner; always filter by this in queries
	BookID      uuid.UUID
	TelegramID  string
	FileName    string
	Pages       int
	CurrentPage int
	FinishedAt  *time.Time
	UpdatedAt   time.Time
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// NewSession starts userID at page 1 of book.
func NewSession(userID uuid.UUID, book *Book, telegramID, fileName string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		BookID:      book.ID,
		TelegramID:  telegramID,
		FileName:    fileName,
		Pages:       book.PageCount(),
		CurrentPage: 1,
		UpdatedAt:   now,
		CreatedAt:   now,
	}
}

// Clone starts a fresh session of the same book for userID, keeping the
// file name and telegram attachment of s.
func (s *Session) Clone(userID uuid.UUID, book *Book, now time.Time) *Session {
	return NewSession(userID, book, s.TelegramID, s.FileName, now)
}

// SetCurrentPage moves the session to page n (1-based).
func (s *Session) SetCurrentPage(n int, now time.Time) error {
	if n <= 0 || n > s.Pages {
		return domain.ErrPageOutOfRange
	}
	s.CurrentPage = n
	s.UpdatedAt = now.UTC()
	return nil
}

func (s *Session) Finish(now time.Time) error {
	if s.FinishedAt != nil {
		return domain.ErrSessionFinished
	}
	t := now.UTC()
	s.FinishedAt = &t
	s.UpdatedAt = t
	return nil
}

// Restart reopens a finished session. The current page is kept.
func (s *Session) Restart(now time.Time) error {
	if s.FinishedAt == nil {
		return domain.ErrSessionNotFinished
	}
	s.FinishedAt = nil
	s.UpdatedAt = now.UTC()
	return nil
}

// Delete marks the session deleted. Deleting twice returns
// domain.ErrSessionNotFound.
func (s *Session) Delete(now time.Time) error {
	if s.DeletedAt != nil {
		return domain.ErrSessionNotFound
	}
	t := now.UTC()
	s.DeletedAt = &t
	s.UpdatedAt = t
	return nil
}

func (s *Session) Deleted() bool {
	return s.DeletedAt != nil
}
