package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ghuser/bookreader/pkg/app"
	"github.com/ghuser/bookreader/pkg/auth"
	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/cache"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/httpx"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/outbox"
	"github.com/ghuser/bookreader/pkg/telemetry"
	"github.com/ghuser/bookreader/pkg/uow"
	libraryApi "github.com/ghuser/bookreader/services/library/application/api"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	// Telemetry: OTel tracing + metrics
	ctx := context.Background()
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	// Crash reporting: Sentry (optional, log and continue on failure)
	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
	}
	defer pool.Close() //nolint:errcheck
	log.Info("database pool connected")

	ch, err := broker.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to broker", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer ch.Close() //nolint:errcheck

	registry := events.NewRegistry()
	if err := libevents.Register(registry); err != nil {
		log.Error("failed to register library events", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	dispatcher := events.NewDispatcher(ch, log)
	listener := events.NewListener(ch, registry, log)
	// Listener.Close waits for in-flight handlers, so it runs before the broker closes.
	defer listener.Close() //nolint:errcheck

	var ob *outbox.Outbox
	var uowOpts []uow.Option
	if cfg.OutboxMode == config.OutboxDurable {
		ob = outbox.New(pool, log)
		if err := ob.Initialize(ctx); err != nil {
			log.Error("failed to initialize outbox", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		uowOpts = append(uowOpts, uow.WithOutbox(ob))
	}
	unitOfWork := uow.New(pool, dispatcher, log, uowOpts...)
	log.Info("unit of work ready", "outbox_mode", cfg.OutboxMode)

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	sessionStore := auth.NewSessionStore(redisClient.Client(), auth.StoreOptions{
		AuthKey:       []byte(cfg.SessionAuthKey),
		EncryptionKey: []byte(cfg.SessionEncryptionKey),
		MaxAge:        cfg.SessionMaxAge,
		Secure:        cfg.Environment == config.EnvProduction,
	})
	log.Info("session store initialized", "backend", "redis")

	appConfig := &app.Application{
		Config:       cfg,
		Db:           pool,
		Logger:       log,
		Broker:       ch,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Listener:     listener,
		UnitOfWork:   unitOfWork,
		Outbox:       ob,
		Redis:        redisClient,
		Reparse:      cache.NewReparseTracker(redisClient, cfg.ReparseHoldTTL),
		SessionStore: sessionStore,
	}

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RequestsPerMinute:  cfg.RateLimitPerMinute,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	checks := []httpx.Check{
		{Name: "database", Checker: pool},
		{Name: "redis", Checker: redisClient},
		{Name: "broker", Checker: ch},
	}
	if ob != nil {
		checks = append(checks, httpx.Check{Name: "outbox", Checker: ob})
	}
	r.Get("/health/live", httpx.LivenessHandler())
	r.Get("/health/ready", httpx.HealthHandler(checks...))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	if cfg.Environment == config.EnvDevelopment {
		r.Post("/dev/login", devLogin(sessionStore, log))
	}
	r.Route("/api", func(r chi.Router) {
		registerRoutes(r, appConfig)
	})

	// Uploads hold the connection until the parser answers.
	srv := httpx.NewServer(cfg.HTTPAddr, r, cfg.UploadTimeout+time.Minute)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// registerRoutes mounts all service routes under /api.
// Add each new service's route function here.
func registerRoutes(r chi.Router, a *app.Application) {
	libraryApi.LibraryRoutes(r, a)
}

// devLogin signs the caller in as a fresh reader. Mounted in development only.
func devLogin(store sessions.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := uuid.New()
		if err := auth.Login(w, r, store, userID); err != nil {
			log.ErrorContext(r.Context(), "dev login failed", "error", err)
			httpx.JSONError(w, http.StatusInternalServerError, "login failed")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"user_id": userID.String()})
	}
}
