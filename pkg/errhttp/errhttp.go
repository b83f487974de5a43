// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/bookreader/pkg/httpx"
	librarydomain "github.com/ghuser/bookreader/services/library/domain"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, mapErrorToStatus(err), err.Error())
}

// WriteSafeError is WriteError with 5xx messages replaced by the status text
// when isProduction is set.
func WriteSafeError(w http.ResponseWriter, err error, isProduction bool) {
	status := mapErrorToStatus(err)
	httpx.JSONError(w, status, httpx.SafeError(err, status, isProduction))
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, librarydomain.ErrBookNotFound),
		errors.Is(err, librarydomain.ErrSessionNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, librarydomain.ErrBookAlreadyExists),
		errors.Is(err, librarydomain.ErrSessionFinished),
		errors.Is(err, librarydomain.ErrSessionNotFinished):
		return http.StatusConflict // 409
	case errors.Is(err, librarydomain.ErrInvalidUpload),
		errors.Is(err, librarydomain.ErrPageOutOfRange),
		errors.Is(err, librarydomain.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, librarydomain.ErrSourceParsingFailed),
		errors.Is(err, librarydomain.ErrSourceReparsingFailed):
		return http.StatusBadGateway // 502
	case errors.Is(err, librarydomain.ErrUploadTimedOut):
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
