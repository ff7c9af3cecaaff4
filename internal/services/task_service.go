package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// TaskCreateInput is the caller's payload for a new task
type TaskCreateInput struct {
	BranchID        uuid.UUID
	Title           string
	Description     string
	Priority        models.TaskPriority
	Assignees       []string
	Labels          []string
	EstimatedEffort string
	DueDate         *time.Time
	Dependencies    []uuid.UUID
}

// TaskUpdateInput carries partial updates; nil fields keep stored values
type TaskUpdateInput struct {
	Title           *string
	Description     *string
	Status          *models.TaskStatus
	Priority        *models.TaskPriority
	Assignees       []string
	Labels          []string
	EstimatedEffort *string
	DueDate         *time.Time
	// Details appends a numbered progress entry when set
	Details         *string
	Progress        *int
}

// TaskCompletionResult is what Complete returns: the finished task plus
// any warnings the caller should surface without failing the call
type TaskCompletionResult struct {
	Task     *models.Task `json:"task"`
	Warnings []string     `json:"warnings,omitempty"`
}

// TaskService manages the task lifecycle
type TaskService struct {
	deps         Deps
	dependencies *DependencyService
	logger       observability.Logger
}

// NewTaskService creates the task service
func NewTaskService(deps Deps, dependencies *DependencyService) *TaskService {
	return &TaskService{
		deps:         deps,
		dependencies: dependencies,
		logger:       deps.Logger.WithPrefix("tasks"),
	}
}

// Create registers a task under a branch. At least one assignee is
// mandatory; requested dependency edges are cycle-checked before any is
// recorded. Branch counters follow automatically.
func (s *TaskService) Create(ctx context.Context, userID string, input TaskCreateInput) (*models.Task, error) {
	if _, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, input.BranchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", input.BranchID.String())
		}
		return nil, err
	}

	task := &models.Task{
		ID:              uuid.New(),
		BranchID:        input.BranchID,
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		Status:          models.TaskStatusTodo,
		Priority:        input.Priority,
		Assignees:       input.Assignees,
		Labels:          input.Labels,
		EstimatedEffort: input.EstimatedEffort,
		DueDate:         input.DueDate,
		ProgressHistory: models.JSONMap{},
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.deps.Repos.Tasks.WithUser(userID).Create(ctx, task); err != nil {
		return nil, err
	}

	for _, dependsOn := range input.Dependencies {
		if err := s.dependencies.Add(ctx, userID, task.ID, dependsOn); err != nil {
			return nil, err
		}
	}
	task.DependsOn = input.Dependencies

	s.publish(events.EventTaskCreated, userID, task.ID, map[string]interface{}{
		"git_branch_id": input.BranchID,
	})
	s.publishCounter(ctx, userID, input.BranchID)
	s.logger.Info("Task created", map[string]interface{}{
		"task_id":   task.ID,
		"branch_id": input.BranchID,
		"title":     task.Title,
	})
	return task, nil
}

// Get returns one task with subtasks and dependency annotations
func (s *TaskService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Task, error) {
	task, err := s.deps.Repos.Tasks.WithUser(userID).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", id.String())
		}
		return nil, err
	}
	subtasks, err := s.deps.Repos.Subtasks.WithUser(userID).ListByTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Subtasks = subtasks
	if err := s.dependencies.Annotate(ctx, userID, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListByBranch returns a branch's tasks with dependency annotations
func (s *TaskService) ListByBranch(ctx context.Context, userID string, branchID uuid.UUID) ([]*models.Task, error) {
	if _, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, branchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("branch", branchID.String())
		}
		return nil, err
	}
	tasks, err := s.deps.Repos.Tasks.WithUser(userID).GetTasksByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if err := s.dependencies.AnnotateAll(ctx, userID, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update applies a partial update. Cancelled tasks are closed for good:
// any further mutation is refused. Done is only reachable through
// Complete, which enforces the completion contract.
func (s *TaskService) Update(ctx context.Context, userID string, id uuid.UUID, input TaskUpdateInput) (*models.Task, error) {
	repo := s.deps.Repos.Tasks.WithUser(userID)
	task, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", id.String())
		}
		return nil, err
	}
	if task.Status == models.TaskStatusCancelled {
		return nil, models.NewConflictError("task %s is cancelled and cannot be modified", id)
	}

	if input.Title != nil {
		task.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		if *input.Status == models.TaskStatusDone && task.Status != models.TaskStatusDone {
			return nil, models.NewPreconditionFailedError("use the complete operation to finish a task").
				WithDetail("field", "status")
		}
		task.Status = *input.Status
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.Assignees != nil {
		task.Assignees = input.Assignees
	}
	if input.Labels != nil {
		task.Labels = input.Labels
	}
	if input.EstimatedEffort != nil {
		task.EstimatedEffort = *input.EstimatedEffort
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.Details != nil {
		percentage := task.Progress
		if input.Progress != nil {
			percentage = *input.Progress
		}
		if err := task.AppendProgress(*input.Details, percentage); err != nil {
			return nil, err
		}
	} else if input.Progress != nil {
		task.Progress = *input.Progress
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := repo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", id.String())
		}
		return nil, err
	}

	s.publish(events.EventTaskUpdated, userID, id, nil)
	s.publishCounter(ctx, userID, task.BranchID)
	return task, nil
}

// Complete finishes a task. A completion summary is mandatory; it is
// recorded in the progress history and the task context. Open subtasks do
// not block completion but are reported as warnings.
func (s *TaskService) Complete(ctx context.Context, userID string, id uuid.UUID, completionSummary, testingNotes string) (*TaskCompletionResult, error) {
	if strings.TrimSpace(completionSummary) == "" {
		return nil, models.NewMissingFieldError("completion_summary")
	}

	repo := s.deps.Repos.Tasks.WithUser(userID)
	task, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", id.String())
		}
		return nil, err
	}
	switch task.Status {
	case models.TaskStatusCancelled:
		return nil, models.NewConflictError("task %s is cancelled and cannot be completed", id)
	case models.TaskStatusDone:
		return nil, models.NewConflictError("task %s is already complete", id)
	}

	var warnings []string
	subtasks, err := s.deps.Repos.Subtasks.WithUser(userID).ListByTask(ctx, id)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, subtask := range subtasks {
		if !subtask.Status.IsTerminal() {
			open++
		}
	}
	if open > 0 {
		warnings = append(warnings, "completed with open subtasks")
	}

	task.Status = models.TaskStatusDone
	if err := task.AppendProgress(completionSummary, 100); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, task); err != nil {
		return nil, err
	}

	// Persist the summary in the task context so it survives in the
	// knowledge hierarchy
	contextData := models.JSONMap{
		"completion_summary": completionSummary,
		"completed_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if strings.TrimSpace(testingNotes) != "" {
		contextData["testing_notes"] = testingNotes
	}
	if _, err := s.deps.Contexts.Update(ctx, userID, models.ContextLevelTask, id, contextData); err != nil {
		s.logger.Warn("Failed to record completion in task context", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
	}

	s.publish(events.EventTaskCompleted, userID, id, map[string]interface{}{
		"open_subtasks": open,
	})
	s.publishCounter(ctx, userID, task.BranchID)
	return &TaskCompletionResult{Task: task, Warnings: warnings}, nil
}

// Delete removes a task with everything it owns: subtasks and dependency
// edges cascade, the task context is removed explicitly
func (s *TaskService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	repo := s.deps.Repos.Tasks.WithUser(userID)
	task, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("task", id.String())
		}
		return err
	}
	err = s.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := repo.WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return s.deps.Repos.Contexts.WithUser(userID).WithTx(tx).DeleteSubtree(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("task", id.String())
		}
		return err
	}
	s.deps.Contexts.Cache().Bump(userID)
	s.publish(events.EventTaskDeleted, userID, id, nil)
	s.publishCounter(ctx, userID, task.BranchID)
	return nil
}

// priorityWeight orders tasks for Next, critical first
var priorityWeight = map[models.TaskPriority]int{
	models.TaskPriorityCritical: 0,
	models.TaskPriorityHigh:     1,
	models.TaskPriorityMedium:   2,
	models.TaskPriorityLow:      3,
}

// Next recommends the branch's best actionable task: the highest-priority
// unblocked, non-terminal task, oldest first on ties. Returns nil when
// nothing is actionable.
func (s *TaskService) Next(ctx context.Context, userID string, branchID uuid.UUID) (*models.Task, error) {
	tasks, err := s.ListByBranch(ctx, userID, branchID)
	if err != nil {
		return nil, err
	}

	var candidates []*models.Task
	for _, task := range tasks {
		if task.CanStart {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := priorityWeight[candidates[i].Priority], priorityWeight[candidates[j].Priority]
		if wi != wj {
			return wi < wj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], nil
}

func (s *TaskService) publish(eventType events.EventType, userID string, id uuid.UUID, payload map[string]interface{}) {
	s.deps.Dispatcher.Publish(events.Event{
		Type:        eventType,
		EntityType:  "task",
		EntityID:    id,
		OwnerUserID: userID,
		Payload:     payload,
	})
}

// publishCounter reads the branch's trigger-maintained counters and
// broadcasts them so live clients stay current
func (s *TaskService) publishCounter(ctx context.Context, userID string, branchID uuid.UUID) {
	branch, err := s.deps.Repos.Branches.WithUser(userID).Get(ctx, branchID)
	if err != nil {
		return
	}
	s.deps.Dispatcher.Publish(events.Event{
		Type:        events.EventCounterChanged,
		EntityType:  "branch",
		EntityID:    branchID,
		OwnerUserID: userID,
		Payload: map[string]interface{}{
			"task_count":           branch.TaskCount,
			"completed_task_count": branch.CompletedTaskCount,
		},
	})
}
