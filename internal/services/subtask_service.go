package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// SubtaskUpdateInput carries partial subtask updates; nil keeps stored
// values
type SubtaskUpdateInput struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
	Priority    *models.TaskPriority
	Assignees   []string
	Progress    *int
}

// SubtaskService manages subtasks under their parent task
type SubtaskService struct {
	deps   Deps
	logger observability.Logger
}

// NewSubtaskService creates the subtask service
func NewSubtaskService(deps Deps) *SubtaskService {
	return &SubtaskService{deps: deps, logger: deps.Logger.WithPrefix("subtasks")}
}

func (s *SubtaskService) parentTask(ctx context.Context, userID string, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.deps.Repos.Tasks.WithUser(userID).Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", taskID.String())
		}
		return nil, err
	}
	return task, nil
}

// Create registers a subtask under a task. Assignees default to the
// parent's when none are given. Subtasks of cancelled tasks are refused.
func (s *SubtaskService) Create(ctx context.Context, userID string, taskID uuid.UUID, title, description string, priority models.TaskPriority, assignees []string) (*models.Subtask, error) {
	task, err := s.parentTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCancelled {
		return nil, models.NewConflictError("task %s is cancelled and cannot take subtasks", taskID)
	}

	subtask := &models.Subtask{
		ID:          uuid.New(),
		TaskID:      taskID,
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      models.TaskStatusTodo,
		Priority:    priority,
		Assignees:   assignees,
	}
	if subtask.Priority == "" {
		subtask.Priority = task.Priority
	}
	if len(subtask.Assignees) == 0 {
		subtask.Assignees = task.Assignees
	}
	if err := subtask.Validate(); err != nil {
		return nil, err
	}

	if err := s.deps.Repos.Subtasks.WithUser(userID).Create(ctx, subtask); err != nil {
		return nil, err
	}
	s.publish(events.EventSubtaskCreated, userID, subtask.ID, map[string]interface{}{
		"task_id": taskID,
	})
	return subtask, nil
}

// Get returns one subtask
func (s *SubtaskService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Subtask, error) {
	subtask, err := s.deps.Repos.Subtasks.WithUser(userID).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("subtask", id.String())
		}
		return nil, err
	}
	return subtask, nil
}

// ListByTask returns a task's subtasks
func (s *SubtaskService) ListByTask(ctx context.Context, userID string, taskID uuid.UUID) ([]*models.Subtask, error) {
	if _, err := s.parentTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Subtasks.WithUser(userID).ListByTask(ctx, taskID)
}

// Update applies a partial update. Subtask progress is independent of the
// parent task's; neither derives from the other.
func (s *SubtaskService) Update(ctx context.Context, userID string, id uuid.UUID, input SubtaskUpdateInput) (*models.Subtask, error) {
	repo := s.deps.Repos.Subtasks.WithUser(userID)
	subtask, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("subtask", id.String())
		}
		return nil, err
	}

	if input.Title != nil {
		subtask.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		subtask.Description = *input.Description
	}
	if input.Status != nil {
		subtask.Status = *input.Status
		if subtask.Status == models.TaskStatusDone {
			subtask.Progress = 100
		}
	}
	if input.Priority != nil {
		subtask.Priority = *input.Priority
	}
	if input.Assignees != nil {
		subtask.Assignees = input.Assignees
	}
	if input.Progress != nil {
		subtask.Progress = *input.Progress
	}
	if err := subtask.Validate(); err != nil {
		return nil, err
	}

	if err := repo.Update(ctx, subtask); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("subtask", id.String())
		}
		return nil, err
	}
	s.publish(events.EventSubtaskUpdated, userID, id, nil)
	return subtask, nil
}

// Complete marks a subtask done with full progress
func (s *SubtaskService) Complete(ctx context.Context, userID string, id uuid.UUID) (*models.Subtask, error) {
	done := models.TaskStatusDone
	return s.Update(ctx, userID, id, SubtaskUpdateInput{Status: &done})
}

// Delete removes one subtask
func (s *SubtaskService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.deps.Repos.Subtasks.WithUser(userID).Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("subtask", id.String())
		}
		return err
	}
	s.publish(events.EventSubtaskDeleted, userID, id, nil)
	return nil
}

func (s *SubtaskService) publish(eventType events.EventType, userID string, id uuid.UUID, payload map[string]interface{}) {
	s.deps.Dispatcher.Publish(events.Event{
		Type:        eventType,
		EntityType:  "subtask",
		EntityID:    id,
		OwnerUserID: userID,
		Payload:     payload,
	})
}
