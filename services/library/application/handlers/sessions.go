package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/errhttp"
	"github.com/ghuser/bookreader/pkg/httpx"
	appsvcs "github.com/ghuser/bookreader/services/library/application/services"
)

// SessionManager is implemented by *appsvcs.SessionService.
type SessionManager interface {
	Clone(ctx context.Context, userID, sessionID uuid.UUID) (*appsvcs.SessionView, error)
	OpenPage(ctx context.Context, userID, sessionID uuid.UUID, number int) (*appsvcs.SessionView, error)
	Finish(ctx context.Context, userID, sessionID uuid.UUID) error
	Restart(ctx context.Context, userID, sessionID uuid.UUID) error
	Delete(ctx context.Context, userID, sessionID uuid.UUID) error
}

// SessionHandlers serve /library/sessions/{id}/... requests.
type SessionHandlers struct {
	sessions     SessionManager
	isProduction bool
}

func NewSessionHandlers(sessions SessionManager, isProduction bool) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, isProduction: isProduction}
}

// Clone handles POST /library/sessions/{id}/clone.
func (h *SessionHandlers) Clone(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.target(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Clone(r.Context(), userID, sessionID)
	if err != nil {
		errhttp.WriteSafeError(w, err, h.isProduction)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionResponse(view))
}

// OpenPage handles PUT /library/sessions/{id}/pages/{number}.
func (h *SessionHandlers) OpenPage(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.target(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "page number must be an integer")
		return
	}
	view, err := h.sessions.OpenPage(r.Context(), userID, sessionID, number)
	if err != nil {
		errhttp.WriteSafeError(w, err, h.isProduction)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionResponse(view))
}

// Finish handles POST /library/sessions/{id}/finish.
func (h *SessionHandlers) Finish(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessions.Finish)
}

// Restart handles POST /library/sessions/{id}/restart.
func (h *SessionHandlers) Restart(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessions.Restart)
}

// Delete handles DELETE /library/sessions/{id}.
func (h *SessionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessions.Delete)
}

func (h *SessionHandlers) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, sessionID uuid.UUID) error) {
	userID, sessionID, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), userID, sessionID); err != nil {
		errhttp.WriteSafeError(w, err, h.isProduction)
		return
	}
	httpx.NoContent(w)
}

// target resolves the calling reader and the session in the URL.
func (h *SessionHandlers) target(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := requireUser(r.Context(), w)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "session id must be a UUID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}
