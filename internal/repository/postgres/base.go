// Package postgres implements the repository contracts on PostgreSQL via
// sqlx. Every repository is a small value type over a shared base that
// carries the user binding, the transaction binding, and observability.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

const defaultQueryTimeout = 30 * time.Second

// base carries what every repository needs. Copies are cheap; WithUser and
// WithTx return rebound copies instead of mutating.
type base struct {
	db           *sqlx.DB
	ext          sqlx.ExtContext
	userID       string
	logger       observability.Logger
	metrics      observability.MetricsClient
	queryTimeout time.Duration
}

func newBase(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) base {
	return base{
		db:           db,
		ext:          db,
		logger:       logger,
		metrics:      metrics,
		queryTimeout: defaultQueryTimeout,
	}
}

func (b base) bindUser(userID string) base {
	b.userID = userID
	return b
}

func (b base) bindTx(tx *sqlx.Tx) base {
	b.ext = tx
	return b
}

// scope returns the bound user id. An unbound repository refuses every
// user-scoped operation; there is no default user.
func (b base) scope() (string, error) {
	if b.userID == "" {
		return "", repository.ErrUnbound
	}
	return b.userID, nil
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.queryTimeout)
}

// observe records a query duration metric; call the result when done
func (b base) observe(entity, operation string) func() {
	start := time.Now()
	return func() {
		b.metrics.RecordDuration("repository_query_duration", time.Since(start), map[string]string{
			"entity":    entity,
			"operation": operation,
		})
	}
}

// NewRepositories wires all postgres repositories over one connection
func NewRepositories(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) *repository.Repositories {
	b := newBase(db, logger, metrics)
	return &repository.Repositories{
		Projects:     &projectRepository{base: b},
		Branches:     &branchRepository{base: b},
		Tasks:        &taskRepository{base: b},
		Subtasks:     &subtaskRepository{base: b},
		Contexts:     &contextRepository{base: b},
		Dependencies: &dependencyRepository{base: b},
		Agents:       &agentRepository{base: b},
		Delegations:  &delegationRepository{base: b},
	}
}
