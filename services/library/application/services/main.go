package services

import (
	"github.com/ghuser/bookreader/pkg/app"
	"github.com/ghuser/bookreader/services/library/infrastructure/persistence/postgres"
)

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Uploader *Uploader
	Sessions *SessionService
}

// New wires all library application services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	books := postgres.NewBookRepository(a.Db)
	pages := postgres.NewPageRepository(a.Db)
	sessions := postgres.NewSessionRepository(a.Db)

	deps := UploaderDeps{
		Listener:   a.Listener,
		Dispatcher: a.Dispatcher,
		UnitOfWork: a.UnitOfWork,
		Books:      books,
		Pages:      pages,
		Sessions:   sessions,
		Log:        a.Logger,
	}
	if a.Reparse != nil {
		deps.Tracker = a.Reparse
	}
	return &Services{
		Uploader: NewUploader(deps, a.Config.UploadTimeout),
		Sessions: NewSessionService(a.UnitOfWork, books, sessions),
	}
}
