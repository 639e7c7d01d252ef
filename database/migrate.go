package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus describes the schema version recorded in schema_migrations
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

// migrateLogger routes golang-migrate output through logrus at debug level
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.WithField("component", "migrate").Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool {
	return log.IsLevelEnabled(log.DebugLevel)
}

// MigrateUp applies every pending migration. Running it against an
// up-to-date schema is a no-op.
func MigrateUp(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("Schema already up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		version, _, _ := m.Version()
		log.WithField("version", version).Info("Schema migrated")
		return nil
	})
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(databaseURL string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}

		version, _, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info("All migrations rolled back")
			return nil
		}
		log.WithField("version", version).Info("Schema rolled back")
		return nil
	})
}

func MigrateStatus(databaseURL string) (*MigrationStatus, error) {
	status := &MigrationStatus{}
	err := withMigrator(databaseURL, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		status.Version = version
		status.Dirty = dirty
		status.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// RunMigrationsWithURL brings a freshly created database to the latest schema.
// Test containers call it before opening their pool.
func RunMigrationsWithURL(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

func withMigrator(databaseURL string, fn func(m *migrate.Migrate) error) error {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*config.ConnConfig)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	defer m.Close()

	return fn(m)
}
