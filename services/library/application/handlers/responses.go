package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/auth"
	"github.com/ghuser/bookreader/pkg/httpx"
	appsvcs "github.com/ghuser/bookreader/services/library/application/services"
)

// BookResponse summarizes the book behind a session.
type BookResponse struct {
	ID          uuid.UUID `json:"id"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Pages       int       `json:"pages"`
}

// SessionResponse is returned by every endpoint that yields a session.
type SessionResponse struct {
	ID          uuid.UUID    `json:"id"`
	TelegramID  string       `json:"telegram_id,omitempty"`
	FileName    string       `json:"file_name,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at"`
	CurrentPage int          `json:"current_page"`
	Book        BookResponse `json:"book"`
}

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toSessionResponse(v *appsvcs.SessionView) SessionResponse {
	return SessionResponse{
		ID:          v.ID,
		TelegramID:  v.TelegramID,
		FileName:    v.FileName,
		FinishedAt:  v.FinishedAt,
		CurrentPage: v.CurrentPage,
		Book: BookResponse{
			ID:          v.Book.ID,
			CoverURL:    v.Book.CoverURL,
			Title:       v.Book.Title,
			Author:      v.Book.Author,
			Description: v.Book.Description,
			Pages:       v.Book.Pages,
		},
	}
}

// requireUser writes 401 and reports false when the request carries no reader.
func requireUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	userID, err := auth.UserIDFromCtx(ctx)
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return uuid.Nil, false
	}
	return userID, true
}
