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

const taskColumns = `id, branch_id, user_id, title, description, status, priority,
	assignees, labels, estimated_effort, due_date, progress_percentage,
	progress_history, context_id, created_at, updated_at`

type taskRepository struct {
	base
}

func (r *taskRepository) WithUser(userID string) repository.TaskRepository {
	return &taskRepository{base: r.bindUser(userID)}
}

func (r *taskRepository) WithTx(tx *sqlx.Tx) repository.TaskRepository {
	return &taskRepository{base: r.bindTx(tx)}
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("task", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	task.UserID = userID
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.ProgressHistory == nil {
		task.ProgressHistory = models.JSONMap{}
	}

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO tasks (
			id, branch_id, user_id, title, description, status, priority,
			assignees, labels, estimated_effort, due_date, progress_percentage,
			progress_history, context_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		task.ID, task.BranchID, task.UserID, task.Title, task.Description,
		task.Status, task.Priority, task.Assignees, task.Labels,
		task.EstimatedEffort, task.DueDate, task.Progress,
		task.ProgressHistory, task.ContextID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create task")
	}
	return nil
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("task", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var task models.Task
	err = sqlx.GetContext(ctx, r.ext, &task, `
		SELECT `+taskColumns+` FROM tasks
		WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get task")
	}
	return &task, nil
}

func (r *taskRepository) GetTasksByBranch(ctx context.Context, branchID uuid.UUID) ([]*models.Task, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("task", "get_by_branch")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tasks := []*models.Task{}
	err = sqlx.SelectContext(ctx, r.ext, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE branch_id = $1 AND user_id = $2 ORDER BY created_at`,
		branchID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks by branch")
	}
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("task", "update")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	task.UpdatedAt = time.Now().UTC()
	result, err := r.ext.ExecContext(ctx, `
		UPDATE tasks SET
			title = $1, description = $2, status = $3, priority = $4,
			assignees = $5, labels = $6, estimated_effort = $7, due_date = $8,
			progress_percentage = $9, progress_history = $10, context_id = $11,
			updated_at = $12
		WHERE id = $13 AND user_id = $14`,
		task.Title, task.Description, task.Status, task.Priority,
		task.Assignees, task.Labels, task.EstimatedEffort, task.DueDate,
		task.Progress, task.ProgressHistory, task.ContextID,
		task.UpdatedAt, task.ID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to update task")
	}
	return requireRowsAffected(result)
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("task", "delete")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete task")
	}
	return requireRowsAffected(result)
}
