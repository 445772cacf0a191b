package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// MigrationsTable keeps the schema version apart from other tenants of a
// shared back-office database.
const MigrationsTable = "ordersync_schema_migrations"

var errNoHandle = errors.New("migration database handle is required")

// RunMigrations brings the postgres order store and feed relations up to the
// newest embedded version. A dirty schema is reported, never forced.
func RunMigrations(db *sql.DB, log *zap.Logger) error {
	if db == nil {
		return errNoHandle
	}
	if log == nil {
		log = zap.NewNop()
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	// Closing the migrator would close the shared *sql.DB.

	if version, dirty, err := migrator.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}

	switch err := migrator.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("schema up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}

	if version, _, err := migrator.Version(); err == nil {
		log.Info("schema migrated", zap.Uint("version", version))
	}
	return nil
}

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}
