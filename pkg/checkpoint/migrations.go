package checkpoint

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed all:migrations/*.sql
var migrationsFS embed.FS

// schemaTable keeps the checkpoint schema version apart from any other
// migrate-managed schema living in the same database.
const schemaTable = "sitecrawl_schema_migrations"

// RunMigrations creates or upgrades the checkpoints table. A database left
// dirty by an interrupted migration is reported, not forced: the operator
// decides which version is really in place.
func RunMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load checkpoint migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: schemaTable})
	if err != nil {
		return fmt.Errorf("prepare checkpoint migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("prepare checkpoint migrations: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("checkpoint schema is dirty at version %d", version)
	} else if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read checkpoint schema version: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Debug("checkpoint schema up to date")
	case err != nil:
		return fmt.Errorf("migrate checkpoint schema: %w", err)
	default:
		version, _, _ := m.Version()
		slog.Info("migrated checkpoint schema", slog.Uint64("version", uint64(version)))
	}
	return nil
}
