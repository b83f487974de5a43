package app

import (
	"github.com/gorilla/sessions"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/cache"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/outbox"
	"github.com/ghuser/bookreader/pkg/uow"
)

// Application holds shared infrastructure dependencies for all services.
// It is built once per process and passed by reference to every service
// constructor and route registration.
//
// Logging: app.Logger is backed by a trace-aware handler. Use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "upload resolved", "session_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
type Application struct {
	Config       *config.Config
	Db           *database.Database
	Logger       logger.Logger
	Broker       broker.Channel
	Registry     *events.Registry
	Dispatcher   *events.Dispatcher
	Listener     *events.Listener
	UnitOfWork   *uow.UnitOfWork
	Outbox       *outbox.Outbox // nil unless OUTBOX_MODE=durable
	Redis        *cache.RedisClient
	Reparse      *cache.ReparseTracker
	SessionStore sessions.Store // Redis-backed session store; nil in worker process
}
