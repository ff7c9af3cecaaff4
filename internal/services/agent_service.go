package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// AgentService manages agent identities and branch assignments
type AgentService struct {
	deps   Deps
	logger observability.Logger
}

// NewAgentService creates the agent service
func NewAgentService(deps Deps) *AgentService {
	return &AgentService{deps: deps, logger: deps.Logger.WithPrefix("agents")}
}

// agentCallTTL bounds staleness of cached agent definitions
const agentCallTTL = 5 * time.Minute

func agentCacheKey(userID, name string) string {
	return "agent:" + userID + ":" + name
}

// Call resolves an agent by name and returns its definition. The name is
// canonicalized first, so "@Coding_Agent" and "coding-agent" both hit the
// same registration. Definitions change rarely, so lookups go through the
// shared cache.
func (s *AgentService) Call(ctx context.Context, userID, rawName string) (*models.Agent, error) {
	name, appErr := models.NormalizeAgentName(rawName)
	if appErr != nil {
		return nil, appErr
	}

	if s.deps.Cache != nil {
		var cached models.Agent
		if err := s.deps.Cache.Get(ctx, agentCacheKey(userID, name), &cached); err == nil {
			return &cached, nil
		}
	}

	agent, err := s.deps.Repos.Agents.WithUser(userID).GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("agent", name)
		}
		return nil, err
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, agentCacheKey(userID, name), agent, agentCallTTL); err != nil {
			s.logger.Debug("Failed to cache agent definition", map[string]interface{}{
				"agent": name,
				"error": err.Error(),
			})
		}
	}
	return agent, nil
}

// Register records an agent identity. Re-registering an existing name
// updates the description and capabilities in place.
func (s *AgentService) Register(ctx context.Context, userID string, projectID uuid.UUID, rawName, description string, capabilities models.JSONMap) (*models.Agent, error) {
	name, appErr := models.NormalizeAgentName(rawName)
	if appErr != nil {
		return nil, appErr
	}

	agent := &models.Agent{
		ID:           models.DeriveAgentID(projectID, name),
		Name:         name,
		Description:  strings.TrimSpace(description),
		Capabilities: capabilities,
	}
	if err := s.deps.Repos.Agents.WithUser(userID).Register(ctx, agent); err != nil {
		return nil, err
	}
	if s.deps.Cache != nil {
		_ = s.deps.Cache.Delete(ctx, agentCacheKey(userID, name))
	}
	s.logger.Info("Agent registered", map[string]interface{}{
		"agent_id": agent.ID,
		"name":     name,
	})
	return agent, nil
}

// Get returns one agent by id
func (s *AgentService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Agent, error) {
	agent, err := s.deps.Repos.Agents.WithUser(userID).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("agent", id.String())
		}
		return nil, err
	}
	return agent, nil
}

// List returns every agent of the user
func (s *AgentService) List(ctx context.Context, userID string) ([]*models.Agent, error) {
	return s.deps.Repos.Agents.WithUser(userID).List(ctx)
}

// Unregister removes an agent identity and all of its assignments
func (s *AgentService) Unregister(ctx context.Context, userID string, id uuid.UUID) error {
	repo := s.deps.Repos.Agents.WithUser(userID)
	agent, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("agent", id.String())
		}
		return err
	}
	if err := repo.Unregister(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("agent", id.String())
		}
		return err
	}
	if s.deps.Cache != nil {
		_ = s.deps.Cache.Delete(ctx, agentCacheKey(userID, agent.Name))
	}
	return nil
}

// Assign binds an agent to a branch. The agent may be addressed by UUID or
// by name; an unknown name is registered on the fly so assignment is a
// single call for the common case.
func (s *AgentService) Assign(ctx context.Context, userID string, branchID uuid.UUID, rawAgent string) (*models.Agent, error) {
	branch, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, branchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", branchID.String())
		}
		return nil, err
	}

	agentRepo := s.deps.Repos.Agents.WithUser(userID)
	agentID, appErr := models.ResolveAgentIdentifier(branch.ProjectID, rawAgent)
	if appErr != nil {
		return nil, appErr
	}

	agent, err := agentRepo.Get(ctx, agentID)
	if errors.Is(err, repository.ErrNotFound) {
		// Only a name can auto-register; an unknown raw UUID stays an error
		if _, uuidErr := models.NormalizeID(rawAgent); uuidErr == nil {
			return nil, models.NewNotFoundError("agent", rawAgent)
		}
		agent, err = s.Register(ctx, userID, branch.ProjectID, rawAgent, "", nil)
	}
	if err != nil {
		return nil, err
	}

	if err := agentRepo.Assign(ctx, branchID, agent.ID); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return agent, nil
		}
		return nil, err
	}
	s.deps.Dispatcher.Publish(events.Event{
		Type:        events.EventAgentAssigned,
		EntityType:  "branch",
		EntityID:    branchID,
		OwnerUserID: userID,
		Payload:     map[string]interface{}{"agent_id": agent.ID, "agent_name": agent.Name},
	})
	return agent, nil
}

// Unassign removes an agent from a branch
func (s *AgentService) Unassign(ctx context.Context, userID string, branchID uuid.UUID, rawAgent string) error {
	branch, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, branchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("branch", branchID.String())
		}
		return err
	}
	agentID, appErr := models.ResolveAgentIdentifier(branch.ProjectID, rawAgent)
	if appErr != nil {
		return appErr
	}
	if err := s.deps.Repos.Agents.WithUser(userID).Unassign(ctx, branchID, agentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("agent assignment", rawAgent)
		}
		return err
	}
	return nil
}
