package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/database"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

const contextColumns = `id, level, user_id, parent_id, data, metadata, created_at, updated_at`

type contextRepository struct {
	base
}

func (r *contextRepository) WithUser(userID string) repository.ContextRepository {
	return &contextRepository{base: r.bindUser(userID)}
}

func (r *contextRepository) WithTx(tx *sqlx.Tx) repository.ContextRepository {
	return &contextRepository{base: r.bindTx(tx)}
}

func (r *contextRepository) Create(ctx context.Context, record *models.Context) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("context", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	record.UserID = userID
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Data == nil {
		record.Data = models.JSONMap{}
	}
	if record.Metadata == nil {
		record.Metadata = models.JSONMap{}
	}

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO contexts (id, level, user_id, parent_id, data, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Level, record.UserID, record.ParentID,
		record.Data, record.Metadata, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to create context")
	}
	return nil
}

func (r *contextRepository) Get(ctx context.Context, level models.ContextLevel, id uuid.UUID) (*models.Context, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("context", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var record models.Context
	err = sqlx.GetContext(ctx, r.ext, &record, `
		SELECT `+contextColumns+` FROM contexts
		WHERE id = $1 AND level = $2 AND user_id = $3`,
		id, level, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get context")
	}
	return &record, nil
}

func (r *contextRepository) Update(ctx context.Context, record *models.Context) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("context", "update")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	record.UpdatedAt = time.Now().UTC()
	result, err := r.ext.ExecContext(ctx, `
		UPDATE contexts SET data = $1, metadata = $2, updated_at = $3
		WHERE id = $4 AND level = $5 AND user_id = $6`,
		record.Data, record.Metadata, record.UpdatedAt,
		record.ID, record.Level, userID)
	if err != nil {
		return errors.Wrap(err, "failed to update context")
	}
	return requireRowsAffected(result)
}

func (r *contextRepository) Delete(ctx context.Context, level models.ContextLevel, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("context", "delete")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM contexts WHERE id = $1 AND level = $2 AND user_id = $3`,
		id, level, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete context")
	}
	return requireRowsAffected(result)
}

// DeleteSubtree removes (any-level, id) and every descendant context row
func (r *contextRepository) DeleteSubtree(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("context", "delete_subtree")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = r.ext.ExecContext(ctx, `
		WITH RECURSIVE doomed AS (
			SELECT c.id, c.level FROM contexts c WHERE c.id = $1 AND c.user_id = $2
			UNION ALL
			SELECT child.id, child.level FROM contexts child
			JOIN doomed ON child.parent_id = doomed.id
			WHERE child.user_id = $2
		)
		DELETE FROM contexts USING doomed
		WHERE contexts.id = doomed.id AND contexts.level = doomed.level
		  AND contexts.user_id = $2`,
		id, userID)
	return errors.Wrap(err, "failed to delete context subtree")
}

// FindAncestors walks parent links from (level, id) to the root and
// returns the chain root-first, excluding the target row itself
func (r *contextRepository) FindAncestors(ctx context.Context, level models.ContextLevel, id uuid.UUID) ([]*models.Context, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("context", "find_ancestors")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	chain := []*models.Context{}
	err = sqlx.SelectContext(ctx, r.ext, &chain, `
		WITH RECURSIVE chain AS (
			SELECT c.*, 0 AS depth FROM contexts c
			WHERE c.id = $1 AND c.level = $2 AND c.user_id = $3
			UNION ALL
			SELECT p.*, chain.depth + 1 FROM contexts p
			JOIN chain ON p.id = chain.parent_id AND p.user_id = chain.user_id
		)
		SELECT `+contextColumns+` FROM chain
		WHERE depth > 0 ORDER BY depth DESC`,
		id, level, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find context ancestors")
	}
	return chain, nil
}

func (r *contextRepository) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	userID, err := r.scope()
	if err != nil {
		return false, err
	}
	defer r.observe("context", "has_children")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	err = sqlx.GetContext(ctx, r.ext, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM contexts WHERE parent_id = $1 AND user_id = $2
		)`,
		id, userID)
	if err != nil {
		return false, errors.Wrap(err, "failed to check context children")
	}
	return exists, nil
}
