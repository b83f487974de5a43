package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/services/library/domain/models"
)

// SessionView is what callers see of a reading session. Empty strings are
// absent values.
type SessionView struct {
	ID          uuid.UUID
	TelegramID  string
	FileName    string
	FinishedAt  *time.Time
	CurrentPage int
	Book        BookSummary
}

type BookSummary struct {
	ID          uuid.UUID
	CoverURL    string
	Title       string
	Author      string
	Description string
	Pages       int
}

func newSessionView(s *models.Session, b *models.Book) *SessionView {
	return &SessionView{
		ID:          s.ID,
		TelegramID:  s.TelegramID,
		FileName:    s.FileName,
		FinishedAt:  s.FinishedAt,
		CurrentPage: s.CurrentPage,
		Book: BookSummary{
			ID:          b.ID,
			CoverURL:    b.CoverURL,
			Title:       b.Title,
			Author:      b.Author,
			Description: b.Description,
			Pages:       b.PageCount(),
		},
	}
}
