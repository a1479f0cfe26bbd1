package database

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// ErrDirtySchema indicates a previous migration aborted partway. Prediction
// and feedback tables hold clinical records, so the runner refuses to apply
// further changes on top of a half-migrated schema; an operator must resolve
// the dirty version first.
var ErrDirtySchema = fmt.Errorf("schema is dirty from an aborted migration")

// MigrationRunner applies the prediction-store schema migrations.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner creates a runner reading file-based migrations from
// migrationsPath and applying them to the database at databaseURL.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// Up applies all pending migrations.
func (mr *MigrationRunner) Up() error {
	if err := mr.guardDirty(); err != nil {
		return err
	}

	mr.log.Info("Applying prediction store migrations")

	if err := mr.migrate.Up(); err != nil {
		if err == migrate.ErrNoChange {
			mr.log.Info("Prediction store schema already current")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	mr.logVersion("Prediction store migrations applied")
	return nil
}

// Down rolls back the most recent migration.
func (mr *MigrationRunner) Down() error {
	if err := mr.guardDirty(); err != nil {
		return err
	}

	mr.log.Info("Rolling back one prediction store migration")

	if err := mr.migrate.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			mr.log.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	mr.logVersion("Prediction store migration rolled back")
	return nil
}

// Version returns the current schema version and whether it is dirty.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// guardDirty refuses to run against a schema left dirty by an aborted
// migration. migrate.ErrNilVersion (a fresh database) is fine.
func (mr *MigrationRunner) guardDirty() error {
	version, dirty, err := mr.migrate.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w (version %d)", ErrDirtySchema, version)
	}
	return nil
}

func (mr *MigrationRunner) logVersion(message string) {
	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not read schema version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(message)
}

// Close releases the migration source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
