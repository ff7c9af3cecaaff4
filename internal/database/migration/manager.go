// Package migration applies schema evolutions at startup. Each migration
// runs through golang-migrate and is additionally recorded in the
// applied_migrations audit table; a failed migration halts startup and is
// retried on the next boot once its failure record is cleared.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Config holds the migration configuration
type Config struct {
	MigrationsPath string        `mapstructure:"migrations_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Manager handles database migrations
type Manager struct {
	db     *sqlx.DB
	config Config
	logger observability.Logger
}

// NewManager creates a new migration manager
func NewManager(db *sqlx.DB, config Config, logger observability.Logger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("db connection cannot be nil")
	}
	if config.MigrationsPath == "" {
		config.MigrationsPath = "migrations/sql"
	}
	if config.Timeout == 0 {
		config.Timeout = time.Minute
	}
	return &Manager{db: db, config: config, logger: logger}, nil
}

// Run applies all pending migrations and records each outcome
func (m *Manager) Run(ctx context.Context) error {
	if err := m.ensureAuditTable(ctx); err != nil {
		return err
	}
	if err := m.clearFailedRecords(ctx); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create postgres migration driver")
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", m.config.MigrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create migrator")
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- migrator.Up()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "migration timed out")
	}

	if err != nil && err != migrate.ErrNoChange {
		m.record(ctx, "pending", false)
		return errors.Wrap(err, "migration failed")
	}

	version, dirty, verr := migrator.Version()
	if verr != nil && verr != migrate.ErrNilVersion {
		return errors.Wrap(verr, "failed to read migration version")
	}
	if dirty {
		m.record(ctx, fmt.Sprintf("%d", version), false)
		return errors.Errorf("migration version %d is dirty", version)
	}

	name := fmt.Sprintf("%d", version)
	if verr == migrate.ErrNilVersion {
		name = "none"
	}
	m.record(ctx, name, true)

	m.logger.Info("Migrations applied", map[string]interface{}{
		"version": name,
		"path":    m.config.MigrationsPath,
	})
	return nil
}

func (m *Manager) ensureAuditTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS applied_migrations (
			migration_name TEXT PRIMARY KEY,
			applied_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			success        BOOLEAN NOT NULL
		)`)
	return errors.Wrap(err, "failed to ensure applied_migrations table")
}

// clearFailedRecords removes records of failed runs so they are retried
func (m *Manager) clearFailedRecords(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM applied_migrations WHERE success = false`)
	return errors.Wrap(err, "failed to clear failed migration records")
}

func (m *Manager) record(ctx context.Context, name string, success bool) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO applied_migrations (migration_name, applied_at, success)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (migration_name) DO UPDATE SET
			applied_at = NOW(),
			success = EXCLUDED.success`,
		name, success)
	if err != nil {
		m.logger.Warn("Failed to record migration outcome", map[string]interface{}{
			"migration": name,
			"error":     err.Error(),
		})
	}
}
