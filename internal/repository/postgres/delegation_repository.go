package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

const delegationColumns = `id, user_id, source_level, source_id, target_level,
	payload, status, attempts, last_error, created_at, processed_at`

type delegationRepository struct {
	base
}

func (r *delegationRepository) WithUser(userID string) repository.DelegationRepository {
	return &delegationRepository{base: r.bindUser(userID)}
}

func (r *delegationRepository) WithTx(tx *sqlx.Tx) repository.DelegationRepository {
	return &delegationRepository{base: r.bindTx(tx)}
}

func (r *delegationRepository) Create(ctx context.Context, delegation *models.Delegation) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("delegation", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if delegation.ID == uuid.Nil {
		delegation.ID = uuid.New()
	}
	delegation.UserID = userID
	delegation.Status = models.DelegationStatusPending
	delegation.CreatedAt = time.Now().UTC()
	if delegation.Payload == nil {
		delegation.Payload = models.JSONMap{}
	}

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO context_delegations (
			id, user_id, source_level, source_id, target_level, payload, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		delegation.ID, delegation.UserID, delegation.SourceLevel, delegation.SourceID,
		delegation.TargetLevel, delegation.Payload, delegation.Status, delegation.CreatedAt)
	return errors.Wrap(err, "failed to create delegation")
}

func (r *delegationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Delegation, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("delegation", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var delegation models.Delegation
	err = sqlx.GetContext(ctx, r.ext, &delegation, `
		SELECT `+delegationColumns+` FROM context_delegations
		WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get delegation")
	}
	return &delegation, nil
}

// ListPending is a system-path query: the worker passes the owning user id
// explicitly, so the repository need not be bound
func (r *delegationRepository) ListPending(ctx context.Context, userID string, limit int) ([]*models.Delegation, error) {
	defer r.observe("delegation", "list_pending")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	delegations := []*models.Delegation{}
	err := sqlx.SelectContext(ctx, r.ext, &delegations, `
		SELECT `+delegationColumns+` FROM context_delegations
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending delegations")
	}
	return delegations, nil
}

// ListPendingUsers is a system-path query used to spawn per-user workers
func (r *delegationRepository) ListPendingUsers(ctx context.Context) ([]string, error) {
	defer r.observe("delegation", "list_pending_users")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	users := []string{}
	err := sqlx.SelectContext(ctx, r.ext, &users, `
		SELECT DISTINCT user_id FROM context_delegations WHERE status = 'pending'`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users with pending delegations")
	}
	return users, nil
}

func (r *delegationRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	defer r.observe("delegation", "mark_processed")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		UPDATE context_delegations
		SET status = 'processed', processed_at = NOW()
		WHERE id = $1`,
		id)
	if err != nil {
		return errors.Wrap(err, "failed to mark delegation processed")
	}
	return requireRowsAffected(result)
}

func (r *delegationRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, final bool) error {
	defer r.observe("delegation", "mark_failed")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	status := models.DelegationStatusPending
	if final {
		status = models.DelegationStatusFailed
	}
	result, err := r.ext.ExecContext(ctx, `
		UPDATE context_delegations
		SET status = $1, attempts = $2, last_error = $3
		WHERE id = $4`,
		status, attempts, lastErr, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark delegation failed")
	}
	return requireRowsAffected(result)
}
