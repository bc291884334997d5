package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrate applies every pending schema migration.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	const op = "postgres.Migrate"

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			logger.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("database migrations applied", "version", version)
	return nil
}
