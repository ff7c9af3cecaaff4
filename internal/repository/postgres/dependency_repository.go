package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/database"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
)

type dependencyRepository struct {
	base
}

func (r *dependencyRepository) WithUser(userID string) repository.DependencyRepository {
	return &dependencyRepository{base: r.bindUser(userID)}
}

func (r *dependencyRepository) WithTx(tx *sqlx.Tx) repository.DependencyRepository {
	return &dependencyRepository{base: r.bindTx(tx)}
}

func (r *dependencyRepository) Add(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("dependency", "add")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO task_dependencies (task_id, depends_on_task_id, user_id)
		VALUES ($1, $2, $3)`,
		taskID, dependsOn, userID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to add dependency")
	}
	return nil
}

func (r *dependencyRepository) Remove(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("dependency", "remove")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM task_dependencies
		WHERE task_id = $1 AND depends_on_task_id = $2 AND user_id = $3`,
		taskID, dependsOn, userID)
	if err != nil {
		return errors.Wrap(err, "failed to remove dependency")
	}
	return requireRowsAffected(result)
}

func (r *dependencyRepository) Clear(ctx context.Context, taskID uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("dependency", "clear")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = r.ext.ExecContext(ctx, `
		DELETE FROM task_dependencies WHERE task_id = $1 AND user_id = $2`,
		taskID, userID)
	return errors.Wrap(err, "failed to clear dependencies")
}

func (r *dependencyRepository) ListForTask(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("dependency", "list_for_task")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids := []uuid.UUID{}
	err = sqlx.SelectContext(ctx, r.ext, &ids, `
		SELECT depends_on_task_id FROM task_dependencies
		WHERE task_id = $1 AND user_id = $2 ORDER BY created_at`,
		taskID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dependencies")
	}
	return ids, nil
}

func (r *dependencyRepository) ListDependents(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("dependency", "list_dependents")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids := []uuid.UUID{}
	err = sqlx.SelectContext(ctx, r.ext, &ids, `
		SELECT task_id FROM task_dependencies
		WHERE depends_on_task_id = $1 AND user_id = $2 ORDER BY created_at`,
		taskID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dependents")
	}
	return ids, nil
}

func (r *dependencyRepository) ListAll(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("dependency", "list_all")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows := []struct {
		TaskID    uuid.UUID `db:"task_id"`
		DependsOn uuid.UUID `db:"depends_on_task_id"`
	}{}
	err = sqlx.SelectContext(ctx, r.ext, &rows, `
		SELECT task_id, depends_on_task_id FROM task_dependencies
		WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dependency graph")
	}

	graph := make(map[uuid.UUID][]uuid.UUID, len(rows))
	for _, row := range rows {
		graph[row.TaskID] = append(graph[row.TaskID], row.DependsOn)
	}
	return graph, nil
}

func (r *dependencyRepository) Count(ctx context.Context) (int, error) {
	userID, err := r.scope()
	if err != nil {
		return 0, err
	}
	defer r.observe("dependency", "count")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	err = sqlx.GetContext(ctx, r.ext, &count, `
		SELECT COUNT(*) FROM task_dependencies WHERE user_id = $1`,
		userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count dependencies")
	}
	return count, nil
}
