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

// BranchService manages git branches and their task counters
type BranchService struct {
	deps   Deps
	logger observability.Logger
}

// NewBranchService creates the branch service
func NewBranchService(deps Deps) *BranchService {
	return &BranchService{deps: deps, logger: deps.Logger.WithPrefix("branches")}
}

// Create registers a branch under a project. Names are unique per project.
func (s *BranchService) Create(ctx context.Context, userID string, projectID uuid.UUID, name, description string) (*models.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewMissingFieldError("git_branch_name")
	}
	if _, err := s.deps.Repos.Projects.WithUser(userID).Get(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", projectID.String())
		}
		return nil, err
	}

	branch := &models.Branch{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Name:        name,
		Description: description,
	}
	if err := s.deps.Repos.Branches.WithUser(userID).Create(ctx, branch); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, models.NewConflictError("branch %q already exists in project %s", name, projectID).
				WithDetail("field", "git_branch_name")
		}
		return nil, err
	}

	if _, err := s.deps.Contexts.Create(ctx, userID, models.ContextLevelBranch, branch.ID, nil, nil); err != nil {
		if models.CodeOf(err) != models.ErrCodeConflict {
			s.logger.Warn("Failed to materialize branch context", map[string]interface{}{
				"branch_id": branch.ID,
				"error":     err.Error(),
			})
		}
	}

	s.publish(events.EventBranchCreated, userID, branch.ID, map[string]interface{}{
		"project_id": projectID,
	})
	return branch, nil
}

// Get returns one branch with its agent assignments attached
func (s *BranchService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Branch, error) {
	branch, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", id.String())
		}
		return nil, err
	}
	assigned, err := s.deps.Repos.Agents.WithUser(userID).ListAssignments(ctx, id)
	if err != nil {
		return nil, err
	}
	branch.AssignedAgents = assigned
	return branch, nil
}

// ListByProject returns the branches of one project
func (s *BranchService) ListByProject(ctx context.Context, userID string, projectID uuid.UUID) ([]*models.Branch, error) {
	if _, err := s.deps.Repos.Projects.WithUser(userID).Get(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("project", projectID.String())
		}
		return nil, err
	}
	return s.deps.Repos.Branches.WithUser(userID).ListByProject(ctx, projectID)
}

// List returns every branch of the user
func (s *BranchService) List(ctx context.Context, userID string) ([]*models.Branch, error) {
	return s.deps.Repos.Branches.WithUser(userID).List(ctx)
}

// Update changes name and/or description
func (s *BranchService) Update(ctx context.Context, userID string, id uuid.UUID, name, description *string) (*models.Branch, error) {
	repo := s.deps.Repos.Branches.WithUser(userID)
	branch, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", id.String())
		}
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, models.NewValidationError("branch name must not be empty").WithDetail("field", "git_branch_name")
		}
		branch.Name = trimmed
	}
	if description != nil {
		branch.Description = *description
	}
	if err := repo.Update(ctx, branch); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, models.NewConflictError("branch %q already exists in project %s", branch.Name, branch.ProjectID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", id.String())
		}
		return nil, err
	}
	s.publish(events.EventBranchUpdated, userID, id, nil)
	return branch, nil
}

// Delete removes a branch; its tasks, subtasks and edges cascade, the
// context subtree is torn down explicitly
func (s *BranchService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	err := s.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.deps.Repos.Branches.WithUser(userID).WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return s.deps.Repos.Contexts.WithUser(userID).WithTx(tx).DeleteSubtree(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("branch", id.String())
		}
		return err
	}
	s.deps.Contexts.Cache().Bump(userID)
	s.publish(events.EventBranchDeleted, userID, id, nil)
	return nil
}

// RecomputeCounters recounts the branch's tasks from the source of truth
// and repairs the stored counters when they drifted. Returns the finding;
// Changed is false when the counters were already correct.
func (s *BranchService) RecomputeCounters(ctx context.Context, userID string, id uuid.UUID) (*models.CounterDiscrepancy, bool, error) {
	repo := s.deps.Repos.Branches.WithUser(userID)
	branch, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, models.NewNotFoundError("branch", id.String())
		}
		return nil, false, err
	}
	total, completed, err := repo.CountTasks(ctx, id)
	if err != nil {
		return nil, false, err
	}

	finding := &models.CounterDiscrepancy{
		BranchID:             id,
		StoredTaskCount:      branch.TaskCount,
		ActualTaskCount:      total,
		StoredCompletedCount: branch.CompletedTaskCount,
		ActualCompletedCount: completed,
	}
	if branch.TaskCount == total && branch.CompletedTaskCount == completed {
		return finding, false, nil
	}

	if err := repo.UpdateCounters(ctx, id, total, completed); err != nil {
		return nil, false, err
	}
	s.deps.Metrics.IncrementCounter("branch_counters_repaired", 1, nil)
	s.publish(events.EventCounterChanged, userID, id, map[string]interface{}{
		"task_count":           total,
		"completed_task_count": completed,
	})
	return finding, true, nil
}

// Statistics summarizes one branch for dashboards
func (s *BranchService) Statistics(ctx context.Context, userID string, id uuid.UUID) (map[string]interface{}, error) {
	branch, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.deps.Repos.Tasks.WithUser(userID).GetTasksByBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	byStatus := map[models.TaskStatus]int{}
	for _, task := range tasks {
		byStatus[task.Status]++
	}
	progress := 0.0
	if branch.TaskCount > 0 {
		progress = float64(branch.CompletedTaskCount) / float64(branch.TaskCount) * 100
	}
	return map[string]interface{}{
		"branch_id":            id,
		"task_count":           branch.TaskCount,
		"completed_task_count": branch.CompletedTaskCount,
		"progress_percentage":  progress,
		"tasks_by_status":      byStatus,
		"assigned_agents":      branch.AssignedAgents,
	}, nil
}

func (s *BranchService) publish(eventType events.EventType, userID string, id uuid.UUID, payload map[string]interface{}) {
	s.deps.Dispatcher.Publish(events.Event{
		Type:        eventType,
		EntityType:  "branch",
		EntityID:    id,
		OwnerUserID: userID,
		Payload:     payload,
	})
}
