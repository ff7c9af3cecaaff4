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

const agentColumns = `id, user_id, name, description, capabilities, created_at, updated_at`

type agentRepository struct {
	base
}

func (r *agentRepository) WithUser(userID string) repository.AgentRepository {
	return &agentRepository{base: r.bindUser(userID)}
}

func (r *agentRepository) WithTx(tx *sqlx.Tx) repository.AgentRepository {
	return &agentRepository{base: r.bindTx(tx)}
}

func (r *agentRepository) Register(ctx context.Context, agent *models.Agent) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("agent", "register")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	agent.UserID = userID
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if agent.Capabilities == nil {
		agent.Capabilities = models.JSONMap{}
	}

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO agents (id, user_id, name, description, capabilities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, name) DO UPDATE SET
			description = EXCLUDED.description,
			capabilities = EXCLUDED.capabilities,
			updated_at = NOW()`,
		agent.ID, agent.UserID, agent.Name, agent.Description,
		agent.Capabilities, agent.CreatedAt, agent.UpdatedAt)
	return errors.Wrap(err, "failed to register agent")
}

func (r *agentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("agent", "get")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var agent models.Agent
	err = sqlx.GetContext(ctx, r.ext, &agent, `
		SELECT `+agentColumns+` FROM agents
		WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get agent")
	}
	return &agent, nil
}

func (r *agentRepository) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("agent", "get_by_name")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var agent models.Agent
	err = sqlx.GetContext(ctx, r.ext, &agent, `
		SELECT `+agentColumns+` FROM agents
		WHERE name = $1 AND user_id = $2`,
		name, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get agent by name")
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("agent", "list")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	agents := []*models.Agent{}
	err = sqlx.SelectContext(ctx, r.ext, &agents, `
		SELECT `+agentColumns+` FROM agents
		WHERE user_id = $1 ORDER BY name`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agents")
	}
	return agents, nil
}

func (r *agentRepository) Unregister(ctx context.Context, id uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("agent", "unregister")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM agents WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to unregister agent")
	}
	return requireRowsAffected(result)
}

func (r *agentRepository) Assign(ctx context.Context, branchID, agentID uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("agent", "assign")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = r.ext.ExecContext(ctx, `
		INSERT INTO branch_agent_assignments (branch_id, agent_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (branch_id, agent_id) DO NOTHING`,
		branchID, agentID, userID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return errors.Wrap(err, "failed to assign agent")
	}
	return nil
}

func (r *agentRepository) Unassign(ctx context.Context, branchID, agentID uuid.UUID) error {
	userID, err := r.scope()
	if err != nil {
		return err
	}
	defer r.observe("agent", "unassign")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.ext.ExecContext(ctx, `
		DELETE FROM branch_agent_assignments
		WHERE branch_id = $1 AND agent_id = $2 AND user_id = $3`,
		branchID, agentID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to unassign agent")
	}
	return requireRowsAffected(result)
}

func (r *agentRepository) ListAssignments(ctx context.Context, branchID uuid.UUID) ([]uuid.UUID, error) {
	userID, err := r.scope()
	if err != nil {
		return nil, err
	}
	defer r.observe("agent", "list_assignments")()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids := []uuid.UUID{}
	err = sqlx.SelectContext(ctx, r.ext, &ids, `
		SELECT agent_id FROM branch_agent_assignments
		WHERE branch_id = $1 AND user_id = $2 ORDER BY created_at`,
		branchID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agent assignments")
	}
	return ids, nil
}
