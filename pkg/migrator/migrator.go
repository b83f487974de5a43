package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Applied describes one migration run by Up.
type Applied struct {
	Version int64
	Path    string
}

// RunMigrations opens dbURL with the pgx driver and applies every pending
// migration in files.
func RunMigrations(ctx context.Context, dbURL string, files fs.FS) ([]Applied, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	return Up(ctx, db, files)
}

// Up applies the pending migrations in files on an open database and
// reports what it ran. Nothing pending is not an error.
func Up(ctx context.Context, db *sql.DB, files fs.FS) ([]Applied, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return nil, fmt.Errorf("failed to create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to up migrations: %w", err)
	}

	applied := make([]Applied, 0, len(results))
	for _, r := range results {
		applied = append(applied, Applied{Version: r.Source.Version, Path: r.Source.Path})
	}
	return applied, nil
}
