package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/ghuser/bookreader/pkg/httpx"
	"github.com/ghuser/bookreader/pkg/logger"
)

const sessionName = "bookreader_session"
const sessionUserIDKey = "user_id"

// toucher is implemented by stores with sliding expiry.
type toucher interface {
	Touch(ctx context.Context, session *sessions.Session) error
}

// RequireAuth is a chi middleware that enforces authentication via session cookies.
// It reads the session cookie, extracts the reader's UserID, and injects it into
// the request context. Returns 401 Unauthorized if the session is missing,
// invalid, or lacks a valid user_id.
//
// After this middleware, handlers can safely call auth.UserIDFromCtx(r.Context()).
func RequireAuth(store sessions.Store, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, sessionName)
			if err != nil {
				log.WarnContext(r.Context(), "invalid session cookie", "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userIDStr, ok := session.Values[sessionUserIDKey].(string)
			if !ok || userIDStr == "" {
				log.WarnContext(r.Context(), "session missing user_id")
				httpx.JSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, err := uuid.Parse(userIDStr)
			if err != nil {
				log.WarnContext(r.Context(), "invalid user_id in session", "user_id", userIDStr, "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, "invalid session data")
				return
			}

			if t, ok := store.(toucher); ok {
				if err := t.Touch(r.Context(), session); err != nil {
					log.WarnContext(r.Context(), "reader session not refreshed", "error", err)
				}
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login stores userID in the session cookie. The identity provider that
// authenticates readers calls it once the reader is known.
func Login(w http.ResponseWriter, r *http.Request, store sessions.Store, userID uuid.UUID) error {
	session, err := store.Get(r, sessionName)
	if err != nil && session == nil {
		return err
	}
	session.Values[sessionUserIDKey] = userID.String()
	return session.Save(r, w)
}
