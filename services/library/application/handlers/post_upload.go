package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/errhttp"
	"github.com/ghuser/bookreader/pkg/httpx"
	pkgvalidator "github.com/ghuser/bookreader/pkg/validator"
	appsvcs "github.com/ghuser/bookreader/services/library/application/services"
)

// UploadRequest is the request body for POST /library/uploads.
type UploadRequest struct {
	FileURL    string `json:"file_url" validate:"required,http_url,max=2048"`
	FileName   string `json:"file_name" validate:"required,filename,max=255"`
	TelegramID string `json:"telegram_id" validate:"omitempty,max=64"`
}

// Uploader is implemented by *appsvcs.Uploader.
type Uploader interface {
	UploadByURL(ctx context.Context, userID uuid.UUID, req appsvcs.UploadRequest) (*appsvcs.SessionView, error)
}

// PostUploadHandler handles POST /library/uploads requests.
type PostUploadHandler struct {
	uploader     Uploader
	isProduction bool
}

func NewPostUploadHandler(uploader Uploader, isProduction bool) *PostUploadHandler {
	return &PostUploadHandler{uploader: uploader, isProduction: isProduction}
}

// Execute uploads a book by URL and responds with the reader's session once
// the parser has answered.
func (h *PostUploadHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r.Context(), w)
	if !ok {
		return
	}

	req, ok := pkgvalidator.ValidateRequest[UploadRequest](w, r)
	if !ok {
		return
	}

	view, err := h.uploader.UploadByURL(r.Context(), userID, appsvcs.UploadRequest{
		FileURL:    req.FileURL,
		FileName:   req.FileName,
		TelegramID: req.TelegramID,
	})
	if err != nil {
		errhttp.WriteSafeError(w, err, h.isProduction)
		return
	}

	httpx.JSON(w, http.StatusCreated, toSessionResponse(view))
}
