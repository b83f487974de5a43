package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ghuser/bookreader/pkg/app"
	"github.com/ghuser/bookreader/pkg/auth"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/services/library/application/handlers"
	appsvcs "github.com/ghuser/bookreader/services/library/application/services"
)

// uploadGrace is added to the upload timeout so the saga reports its own
// timeout before the request deadline cuts it off.
const uploadGrace = 10 * time.Second

// LibraryRoutes registers library endpoints on the provided chi router.
func LibraryRoutes(r chi.Router, a *app.Application) {
	svcs := appsvcs.New(a)
	prod := a.Config.Environment == config.EnvProduction

	upload := handlers.NewPostUploadHandler(svcs.Uploader, prod)
	sessions := handlers.NewSessionHandlers(svcs.Sessions, prod)

	r.Route("/library", func(r chi.Router) {
		r.Use(auth.RequireAuth(a.SessionStore, a.Logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.UploadTimeout + uploadGrace))
			r.Post("/uploads", upload.Execute)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.RequestTimeout))
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Delete("/", sessions.Delete)
				r.Post("/clone", sessions.Clone)
				r.Put("/pages/{number}", sessions.OpenPage)
				r.Post("/finish", sessions.Finish)
				r.Post("/restart", sessions.Restart)
			})
		})
	})
}
