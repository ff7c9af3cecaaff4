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

const subtaskColumns = `id, task_id, user_id, title, description, status,
	priority, assignees, progress_percentage, created_at, updated_at`

type subtaskRepository struct {
	base
}

func (r *subtaskRepository) WithUser(userID string) repository.SubtaskRepository {
	return &subtaskRepository{base: r.bindUser(userID)}
}

func (r *subtaskRepository) WithTx(tx *sqlx.Tx) repository.SubtaskRepository {
	return &subtaskRepository{base: r.bindTx(tx)}
}

func (r *subtaskRepository) Create(ctx context.Context, subtask *models.Subtask) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("subtask", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if subtask.ID == uuid.Nil {
		subtask.ID = uuid.New()
	}
	now := time.Now().UTC()
	subtask.UserID = userID
	subtask.CreatedAt = now
	subtask.UpdatedAt = now

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO subtasks (
			id, task_id, user_id, title, description, status, priority,
			assignees, progress_percentage, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		subtask.ID, subtask.TaskID, subtask.UserID, subtask.Title,
		subtask.Description, subtask.Status, subtask.Priority,
		subtask.Assignees, subtask.Progress, subtask.CreatedAt, subtask.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create subtask")
	}
	return nil
}

func (r *subtaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Subtask, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("subtask", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var subtask models.Subtask
	err = sqlx.GetContext(ctx, r.ext, &subtask, `
		SELECT `+subtaskColumns+` FROM subtasks
		WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get subtask")
	}
	return &subtask, nil
}

func (r *subtaskRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Subtask, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("subtask", "list_by_task")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	subtasks := []*models.Subtask{}
	err = sqlx.SelectContext(ctx, r.ext, &subtasks, `
		SELECT `+subtaskColumns+` FROM subtasks
		WHERE task_id = $1 AND user_id = $2 ORDER BY created_at`,
		taskID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subtasks")
	}
	return subtasks, nil
}

func (r *subtaskRepository) Update(ctx context.Context, subtask *models.Subtask) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("subtask", "update")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	subtask.UpdatedAt = time.Now().UTC()
	result, err := r.ext.ExecContext(ctx, `
		UPDATE subtasks SET
			title = $1, description = $2, status = $3, priority = $4,
			assignees = $5, progress_percentage = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9`,
		subtask.Title, subtask.Description, subtask.Status, subtask.Priority,
		subtask.Assignees, subtask.Progress, subtask.UpdatedAt,
		subtask.ID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to update subtask")
	}
	return requireRowsAffected(result)
}

func (r *subtaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("subtask", "delete")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM subtasks WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete subtask")
	}
	return requireRowsAffected(result)
}
