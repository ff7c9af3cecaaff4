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

const branchColumns = `id, project_id, user_id, name, description,
	task_count, completed_task_count, created_at, updated_at`

type branchRepository struct {
	base
}

func (r *branchRepository) WithUser(userID string) repository.BranchRepository {
	return &branchRepository{base: r.bindUser(userID)}
}

func (r *branchRepository) WithTx(tx *sqlx.Tx) repository.BranchRepository {
	return &branchRepository{base: r.bindTx(tx)}
}

func (r *branchRepository) Create(ctx context.Context, branch *models.Branch) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("branch", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if branch.ID == uuid.Nil {
		branch.ID = uuid.New()
	}
	now := time.Now().UTC()
	branch.UserID = userID
	branch.CreatedAt = now
	branch.UpdatedAt = now

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO git_branches (id, project_id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		branch.ID, branch.ProjectID, branch.UserID, branch.Name, branch.Description,
		branch.CreatedAt, branch.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to create branch")
	}
	return nil
}

func (r *branchRepository) Get(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("branch", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var branch models.Branch
	err = sqlx.GetContext(ctx, r.ext, &branch, `
		SELECT `+branchColumns+` FROM git_branches
		WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get branch")
	}
	return &branch, nil
}

func (r *branchRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Branch, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("branch", "list_by_project")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	branches := []*models.Branch{}
	err = sqlx.SelectContext(ctx, r.ext, &branches, `
		SELECT `+branchColumns+` FROM git_branches
		WHERE project_id = $1 AND user_id = $2 ORDER BY created_at`,
		projectID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list branches")
	}
	return branches, nil
}

func (r *branchRepository) List(ctx context.Context) ([]*models.Branch, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("branch", "list")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	branches := []*models.Branch{}
	err = sqlx.SelectContext(ctx, r.ext, &branches, `
		SELECT `+branchColumns+` FROM git_branches
		WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list branches")
	}
	return branches, nil
}

func (r *branchRepository) Update(ctx context.Context, branch *models.Branch) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("branch", "update")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	branch.UpdatedAt = time.Now().UTC()
	result, err := r.ext.ExecContext(ctx, `
		UPDATE git_branches SET name = $1, description = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		branch.Name, branch.Description, branch.UpdatedAt, branch.ID, userID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to update branch")
	}
	return requireRowsAffected(result)
}

func (r *branchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("branch", "delete")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM git_branches WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete branch")
	}
	return requireRowsAffected(result)
}

func (r *branchRepository) UpdateCounters(ctx context.Context, id uuid.UUID, taskCount, completedCount int) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("branch", "update_counters")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		UPDATE git_branches SET task_count = $1, completed_task_count = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4`,
		taskCount, completedCount, id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to update branch counters")
	}
	return requireRowsAffected(result)
}

func (r *branchRepository) CountTasks(ctx context.Context, id uuid.UUID) (int, int, error) {
	userID, err := r.scope()
	if err != nil {
		return 0, 0, err
	}
	defer r.observe("branch", "count_tasks")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var counts struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
	}
	err = sqlx.GetContext(ctx, r.ext, &counts, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'done') AS completed
		FROM tasks WHERE branch_id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count branch tasks")
	}
	return counts.Total, counts.Completed, nil
}
