package main

import (
	"context"
	"embed"
	"log/slog"
	"os"

	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applied, err := migrator.RunMigrations(context.Background(), cfg.DatabaseURL, MigrationsFS)
	if err != nil {
		slog.Error("library migrations failed", "error", err)
		os.Exit(1)
	}
	for _, m := range applied {
		slog.Info("migration applied", "version", m.Version, "path", m.Path)
	}
	slog.Info("library schema up to date", "applied", len(applied))
}
