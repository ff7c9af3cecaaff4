package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// ProjectService manages the top-level project aggregate
type ProjectService struct {
	deps   Deps
	logger observability.Logger
}

// NewProjectService creates the project service
func NewProjectService(deps Deps) *ProjectService {
	return &ProjectService{deps: deps, logger: deps.Logger.WithPrefix("projects")}
}

// Create registers a new project. Names are unique per user.
func (s *ProjectService) Create(ctx context.Context, userID, name, description string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewMissingFieldError("name")
	}

	project := &models.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}
	if err := s.deps.Repos.Projects.WithUser(userID).Create(ctx, project); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, models.NewConflictError("project %q already exists", name).
				WithDetail("field", "name")
		}
		return nil, err
	}

	// Materialize the project-tier context so the hierarchy is addressable
	// immediately. A racing create of the same row is fine.
	if _, err := s.deps.Contexts.Create(ctx, userID, models.ContextLevelProject, project.ID, nil, nil); err != nil {
		if models.CodeOf(err) != models.ErrCodeConflict {
			s.logger.Warn("Failed to materialize project context", map[string]interface{}{
				"project_id": project.ID,
				"error":      err.Error(),
			})
		}
	}

	s.publish(events.EventProjectCreated, userID, project.ID, nil)
	s.logger.Info("Project created", map[string]interface{}{
		"project_id": project.ID,
		"name":       name,
	})
	return project, nil
}

// Get returns one project with its branches attached
func (s *ProjectService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Project, error) {
	project, err := s.deps.Repos.Projects.WithUser(userID).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", id.String())
		}
		return nil, err
	}
	branches, err := s.deps.Repos.Branches.WithUser(userID).ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Branches = branches
	return project, nil
}

// GetByName returns one project addressed by its unique name
func (s *ProjectService) GetByName(ctx context.Context, userID, name string) (*models.Project, error) {
	project, err := s.deps.Repos.Projects.WithUser(userID).GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", name)
		}
		return nil, err
	}
	return project, nil
}

// List returns every project of the user
func (s *ProjectService) List(ctx context.Context, userID string) ([]*models.Project, error) {
	return s.deps.Repos.Projects.WithUser(userID).List(ctx)
}

// Update changes name and/or description. Empty arguments keep the stored
// value.
func (s *ProjectService) Update(ctx context.Context, userID string, id uuid.UUID, name, description *string) (*models.Project, error) {
	repo := s.deps.Repos.Projects.WithUser(userID)
	project, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", id.String())
		}
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, models.NewValidationError("project name must not be empty").WithDetail("field", "name")
		}
		project.Name = trimmed
	}
	if description != nil {
		project.Description = *description
	}
	if err := repo.Update(ctx, project); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, models.NewConflictError("project %q already exists", project.Name)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", id.String())
		}
		return nil, err
	}
	s.publish(events.EventProjectUpdated, userID, id, nil)
	return project, nil
}

// Delete removes a project and everything under it: branches, tasks,
// subtasks and dependency edges go via referential cascade, the context
// subtree is torn down explicitly.
func (s *ProjectService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	// The entity row and its context subtree go in one transaction
	err := s.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.deps.Repos.Projects.WithUser(userID).WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return s.deps.Repos.Contexts.WithUser(userID).WithTx(tx).DeleteSubtree(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("project", id.String())
		}
		return err
	}
	s.deps.Contexts.Cache().Bump(userID)
	s.publish(events.EventProjectDeleted, userID, id, nil)
	return nil
}

// HealthCheck inspects one project: branch counter drift and aggregate
// task totals. It reads only; RecomputeCounters repairs drift.
func (s *ProjectService) HealthCheck(ctx context.Context, userID string, id uuid.UUID) (*models.ProjectHealth, error) {
	branchRepo := s.deps.Repos.Branches.WithUser(userID)
	if _, err := s.deps.Repos.Projects.WithUser(userID).Get(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", id.String())
		}
		return nil, err
	}
	branches, err := branchRepo.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	health := &models.ProjectHealth{
		ProjectID:   id,
		BranchCount: len(branches),
		Healthy:     true,
	}
	for _, branch := range branches {
		total, completed, err := branchRepo.CountTasks(ctx, branch.ID)
		if err != nil {
			return nil, err
		}
		health.TaskCount += total
		health.CompletedTasks += completed
		if total != branch.TaskCount || completed != branch.CompletedTaskCount {
			health.CounterDrift = append(health.CounterDrift, branch.ID)
			health.Healthy = false
		}
	}
	return health, nil
}

// ValidateIntegrity audits one project and reports each finding without
// mutating anything
func (s *ProjectService) ValidateIntegrity(ctx context.Context, userID string, id uuid.UUID) (map[string]interface{}, error) {
	health, err := s.HealthCheck(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	findings := []map[string]interface{}{}
	branchRepo := s.deps.Repos.Branches.WithUser(userID)
	for _, branchID := range health.CounterDrift {
		branch, err := branchRepo.Get(ctx, branchID)
		if err != nil {
			continue
		}
		total, completed, err := branchRepo.CountTasks(ctx, branchID)
		if err != nil {
			continue
		}
		findings = append(findings, map[string]interface{}{
			"kind":      "counter_drift",
			"branch_id": branchID,
			"stored":    map[string]int{"task_count": branch.TaskCount, "completed_task_count": branch.CompletedTaskCount},
			"actual":    map[string]int{"task_count": total, "completed_task_count": completed},
		})
	}

	// Dependency edges pointing at deleted tasks cannot exist while the
	// foreign keys hold; report any that do.
	edges, err := s.deps.Repos.Dependencies.WithUser(userID).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	taskRepo := s.deps.Repos.Tasks.WithUser(userID)
	for taskID, preds := range edges {
		if _, err := taskRepo.Get(ctx, taskID); errors.Is(err, repository.ErrNotFound) {
			findings = append(findings, map[string]interface{}{
				"kind":    "orphaned_dependency",
				"task_id": taskID,
			})
			continue
		}
		for _, pred := range preds {
			if _, err := taskRepo.Get(ctx, pred); errors.Is(err, repository.ErrNotFound) {
				findings = append(findings, map[string]interface{}{
					"kind":       "orphaned_dependency",
					"task_id":    taskID,
					"depends_on": pred,
				})
			}
		}
	}

	return map[string]interface{}{
		"project_id": id,
		"healthy":    health.Healthy && len(findings) == 0,
		"findings":   findings,
	}, nil
}

// CleanupObsolete repairs what ValidateIntegrity reports: drifted counters
// are recomputed and dangling dependency edges removed. Returns a summary
// of the repairs performed.
func (s *ProjectService) CleanupObsolete(ctx context.Context, userID string, id uuid.UUID) (map[string]interface{}, error) {
	health, err := s.HealthCheck(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	branchRepo := s.deps.Repos.Branches.WithUser(userID)
	repaired := 0
	for _, branchID := range health.CounterDrift {
		total, completed, err := branchRepo.CountTasks(ctx, branchID)
		if err != nil {
			return nil, err
		}
		if err := branchRepo.UpdateCounters(ctx, branchID, total, completed); err != nil {
			return nil, err
		}
		repaired++
		s.publish(events.EventCounterChanged, userID, branchID, map[string]interface{}{
			"task_count":           total,
			"completed_task_count": completed,
		})
	}

	depRepo := s.deps.Repos.Dependencies.WithUser(userID)
	taskRepo := s.deps.Repos.Tasks.WithUser(userID)
	edges, err := depRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	removedEdges := 0
	for taskID, preds := range edges {
		if _, err := taskRepo.Get(ctx, taskID); errors.Is(err, repository.ErrNotFound) {
			if err := depRepo.Clear(ctx, taskID); err == nil {
				removedEdges += len(preds)
			}
			continue
		}
		for _, pred := range preds {
			if _, err := taskRepo.Get(ctx, pred); errors.Is(err, repository.ErrNotFound) {
				if err := depRepo.Remove(ctx, taskID, pred); err == nil {
					removedEdges++
				}
			}
		}
	}

	return map[string]interface{}{
		"project_id":        id,
		"counters_repaired": repaired,
		"dangling_edges":    removedEdges,
	}, nil
}

// RebalanceAgents redistributes the project's agent assignments so branch
// loads stay even. Agents are gathered across all branches and dealt back
// round-robin in branch creation order.
func (s *ProjectService) RebalanceAgents(ctx context.Context, userID string, id uuid.UUID) (map[string]interface{}, error) {
	branches, err := s.deps.Repos.Branches.WithUser(userID).ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return nil, models.NewPreconditionFailedError("project %s has no branches to balance", id)
	}

	agentRepo := s.deps.Repos.Agents.WithUser(userID)
	var pool []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, branch := range branches {
		assigned, err := agentRepo.ListAssignments(ctx, branch.ID)
		if err != nil {
			return nil, err
		}
		for _, agentID := range assigned {
			if !seen[agentID] {
				seen[agentID] = true
				pool = append(pool, agentID)
			}
			if err := agentRepo.Unassign(ctx, branch.ID, agentID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
	}

	moves := 0
	for i, agentID := range pool {
		branch := branches[i%len(branches)]
		if err := agentRepo.Assign(ctx, branch.ID, agentID); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			return nil, err
		}
		moves++
		s.publish(events.EventAgentAssigned, userID, branch.ID, map[string]interface{}{
			"agent_id": agentID,
		})
	}

	return map[string]interface{}{
		"project_id": id,
		"agents":     len(pool),
		"branches":   len(branches),
		"moves":      moves,
	}, nil
}

func (s *ProjectService) publish(eventType events.EventType, userID string, id uuid.UUID, payload map[string]interface{}) {
	s.deps.Dispatcher.Publish(events.Event{
		Type:        eventType,
		EntityType:  "project",
		EntityID:    id,
		OwnerUserID: userID,
		Payload:     payload,
	})
}
