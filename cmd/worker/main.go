package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/cache"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/httpx"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/outbox"
	"github.com/ghuser/bookreader/pkg/telemetry"
	"github.com/ghuser/bookreader/services/library/application/subscribers"
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

	cfg.ServiceName += "-worker"
	log := logger.New(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(context.Background()) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close() //nolint:errcheck
	log.Info("database pool connected")

	ch, err := broker.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to broker", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer ch.Close() //nolint:errcheck

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	registry := events.NewRegistry()
	if err := libevents.Register(registry); err != nil {
		log.Error("failed to register library events", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	listener := events.NewListener(ch, registry, log)
	defer listener.Close() //nolint:errcheck

	tracker := cache.NewReparseTracker(redisClient, cfg.ReparseHoldTTL)
	if err := subscribers.Register(ctx, listener, tracker, log); err != nil {
		log.Error("failed to register subscribers", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	// In durable mode the API stages events in the SQL outbox; this process
	// relays them to the broker.
	checks := []httpx.Check{
		{Name: "database", Checker: pool},
		{Name: "redis", Checker: redisClient},
		{Name: "broker", Checker: ch},
	}
	if cfg.OutboxMode == config.OutboxDurable {
		ob := outbox.New(pool, log)
		if err := ob.Initialize(ctx); err != nil {
			log.Error("failed to initialize outbox", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		if err := ob.Run(ctx, broker.NewPublisher(ch)); err != nil {
			log.Error("failed to start outbox forwarder", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer ob.Close() //nolint:errcheck
		checks = append(checks, httpx.Check{Name: "outbox", Checker: ob})
	}

	// The worker has no public API; it only serves probes and metrics.
	r := chi.NewRouter()
	r.Use(logger.Recovery(log))
	r.Get("/health/live", httpx.LivenessHandler())
	r.Get("/health/ready", httpx.HealthHandler(checks...))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	srv := httpx.NewServer(cfg.WorkerAddr, r, 0)
	go func() {
		log.Info("worker probes listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker probe server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	stop()

	// Listener.Close (via defer) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}
