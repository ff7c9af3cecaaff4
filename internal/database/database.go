// Package database is the relational storage gateway: connection pool
// management, transaction helpers with transient-failure retry, and the
// startup migration runner.
package database

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	// PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/phamhung075/4genthub-sub028/internal/config"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Database represents the database access layer
type Database struct {
	db     *sqlx.DB
	logger observability.Logger
}

// New connects to the database and configures the pool
func New(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*Database, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	db, err := sqlx.ConnectContext(connectCtx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Database connected", map[string]interface{}{
		"driver":         cfg.Driver,
		"max_open_conns": cfg.MaxOpenConns,
	})

	return &Database{db: db, logger: logger}, nil
}

// NewFromDB wraps an existing connection. Used by tests with sqlmock.
func NewFromDB(db *sqlx.DB, logger observability.Logger) *Database {
	return &Database{db: db, logger: logger}
}

// DB exposes the underlying sqlx handle for repository construction
func (d *Database) DB() *sqlx.DB { return d.db }

// Close closes the connection pool
func (d *Database) Close() error { return d.db.Close() }

// Ping verifies connectivity
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The whole transaction is retried
// once when it fails with a transient error (serialization failure,
// deadlock, dropped connection); any other failure rolls back and returns.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	attempt := func() error {
		tx, err := d.db.BeginTxx(ctx, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to begin transaction"))
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Warn("Rollback failed", map[string]interface{}{"error": rbErr.Error()})
			}
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(errors.Wrap(err, "failed to commit transaction"))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(50*time.Millisecond), 1), ctx)
	return backoff.Retry(attempt, policy)
}

// IsTransient reports whether the error is worth one retry
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"57P03": // cannot_connect_now
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad connection")
}

// IsUniqueViolation reports whether the error is a unique constraint
// violation, which the services surface as CONFLICT
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether the error is a foreign key
// violation
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
