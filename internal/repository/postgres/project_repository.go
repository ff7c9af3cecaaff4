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

type projectRepository struct {
	base
}

func (r *projectRepository) WithUser(userID string) repository.ProjectRepository {
	return &projectRepository{base: r.bindUser(userID)}
}

func (r *projectRepository) WithTx(tx *sqlx.Tx) repository.ProjectRepository {
	return &projectRepository{base: r.bindTx(tx)}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("project", "create")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now().UTC()
	project.UserID = userID
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		project.ID, project.UserID, project.Name, project.Description,
		project.CreatedAt, project.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to create project")
	}
	return nil
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("project", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var project models.Project
	err = sqlx.GetContext(ctx, r.ext, &project, `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM projects WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get project")
	}
	return &project, nil
}

func (r *projectRepository) GetByName(ctx context.Context, name string) (*models.Project, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("project", "get_by_name")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var project models.Project
	err = sqlx.GetContext(ctx, r.ext, &project, `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM projects WHERE name = $1 AND user_id = $2`,
		name, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get project by name")
	}
	return &project, nil
}

func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("project", "list")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	projects := []*models.Project{}
	err = sqlx.SelectContext(ctx, r.ext, &projects, `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM projects WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projects")
	}
	return projects, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("project", "update")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	project.UpdatedAt = time.Now().UTC()
	result, err := r.ext.ExecContext(ctx, `
		UPDATE projects SET name = $1, description = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		project.Name, project.Description, project.UpdatedAt, project.ID, userID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to update project")
	}
	return requireRowsAffected(result)
}

func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("project", "delete")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM projects WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete project")
	}
	return requireRowsAffected(result)
}

// requireRowsAffected translates a zero-row write into ErrNotFound
func requireRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
