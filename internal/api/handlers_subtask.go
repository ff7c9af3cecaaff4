package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

var subtaskParams = []string{
	"action", "subtask_id", "task_id", "title", "description",
	"status", "priority", "assignees", "progress_percentage",
}

func (s *Server) subtaskTool() *Tool {
	return &Tool{
		Name:        "manage_subtask",
		Description: "Create, inspect, update, complete and delete subtasks under a parent task.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"create", "get", "list", "update", "complete", "delete"),
			"subtask_id":          prop("Subtask identifier (UUID)"),
			"task_id":             prop("Parent task identifier (UUID)"),
			"title":               prop("Subtask title"),
			"description":         prop("Subtask description"),
			"status":              propEnum("Subtask status", "todo", "in_progress", "blocked", "done", "cancelled"),
			"priority":            propEnum("Subtask priority", "low", "medium", "high", "critical"),
			"assignees":           prop("Assignee list; defaults to the parent task's"),
			"progress_percentage": prop("Progress within [0,100]"),
		}, "action"),
		handler: s.handleSubtask,
	}
}

func (s *Server) handleSubtask(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown(subtaskParams...); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	subtasks, appErr := s.facades.Subtasks(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "create":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		title, err := p.RequiredString("title")
		if err != nil {
			return fail(ctx, err)
		}
		description, _, err := p.String("description")
		if err != nil {
			return fail(ctx, err)
		}
		priority, _, err := p.Enum("priority", "low", "medium", "high", "critical")
		if err != nil {
			return fail(ctx, err)
		}
		assignees, _, err := p.StringSlice("assignees")
		if err != nil {
			return fail(ctx, err)
		}
		subtask, createErr := subtasks.Create(ctx, taskID, title, description,
			models.TaskPriority(priority), assignees)
		if createErr != nil {
			return fail(ctx, createErr)
		}
		return successEnvelope("subtask created", map[string]interface{}{"subtask": subtask})

	case "get":
		id, err := p.RequiredUUID("subtask_id")
		if err != nil {
			return fail(ctx, err)
		}
		subtask, getErr := subtasks.Get(ctx, id)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		return successEnvelope("subtask found", map[string]interface{}{"subtask": subtask})

	case "list":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		list, listErr := subtasks.ListByTask(ctx, taskID)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("subtasks listed", map[string]interface{}{
			"subtasks": list,
			"count":    len(list),
		})

	case "update":
		id, err := p.RequiredUUID("subtask_id")
		if err != nil {
			return fail(ctx, err)
		}
		input := services.SubtaskUpdateInput{}
		if input.Title, err = p.OptionalString("title"); err != nil {
			return fail(ctx, err)
		}
		if input.Description, err = p.OptionalString("description"); err != nil {
			return fail(ctx, err)
		}
		if raw, ok, enumErr := p.Enum("status", "todo", "in_progress", "blocked", "done", "cancelled"); enumErr != nil {
			return fail(ctx, enumErr)
		} else if ok {
			status := models.TaskStatus(raw)
			input.Status = &status
		}
		if raw, ok, enumErr := p.Enum("priority", "low", "medium", "high", "critical"); enumErr != nil {
			return fail(ctx, enumErr)
		} else if ok {
			priority := models.TaskPriority(raw)
			input.Priority = &priority
		}
		if assignees, ok, sliceErr := p.StringSlice("assignees"); sliceErr != nil {
			return fail(ctx, sliceErr)
		} else if ok {
			input.Assignees = assignees
		}
		if progress, ok, intErr := p.Int("progress_percentage"); intErr != nil {
			return fail(ctx, intErr)
		} else if ok {
			input.Progress = &progress
		}
		subtask, updateErr := subtasks.Update(ctx, id, input)
		if updateErr != nil {
			return fail(ctx, updateErr)
		}
		return successEnvelope("subtask updated", map[string]interface{}{"subtask": subtask})

	case "complete":
		id, err := p.RequiredUUID("subtask_id")
		if err != nil {
			return fail(ctx, err)
		}
		subtask, completeErr := subtasks.Complete(ctx, id)
		if completeErr != nil {
			return fail(ctx, completeErr)
		}
		return successEnvelope("subtask completed", map[string]interface{}{"subtask": subtask})

	case "delete":
		id, err := p.RequiredUUID("subtask_id")
		if err != nil {
			return fail(ctx, err)
		}
		if deleteErr := subtasks.Delete(ctx, id); deleteErr != nil {
			return fail(ctx, deleteErr)
		}
		return successEnvelope("subtask deleted", map[string]interface{}{"subtask_id": id})

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_subtask", action).
			WithDetail("field", "action"))
	}
}
