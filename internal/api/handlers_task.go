package api

import (
	"context"
	"strings"
	"time"

	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

var taskParams = []string{
	"action", "task_id", "git_branch_id", "title", "description",
	"status", "priority", "assignees", "labels", "estimated_effort",
	"due_date", "dependencies", "dependency_id", "details",
	"progress_percentage", "completion_summary", "testing_notes",
}

func (s *Server) taskTool() *Tool {
	return &Tool{
		Name:        "manage_task",
		Description: "Full task lifecycle: create with assignees and dependencies, update progress, complete with a summary, manage dependency edges, and get the next actionable task.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"create", "get", "list", "update", "complete", "delete",
				"next", "add_dependency", "remove_dependency", "list_subtasks"),
			"task_id":             prop("Task identifier (UUID)"),
			"git_branch_id":       prop("Owning branch identifier (UUID)"),
			"title":               prop("Task title"),
			"description":         prop("Task description"),
			"status":              propEnum("Task status", "todo", "in_progress", "blocked", "done", "cancelled"),
			"priority":            propEnum("Task priority", "low", "medium", "high", "critical"),
			"assignees":           prop("Assignee list; at least one is required at creation"),
			"labels":              prop("Label list"),
			"estimated_effort":    prop("Free-form effort estimate"),
			"due_date":            prop("Due date, RFC3339 or YYYY-MM-DD"),
			"dependencies":        prop("Task UUIDs this task depends on"),
			"dependency_id":       prop("Dependency task UUID for edge actions"),
			"details":             prop("Progress note appended to the numbered history"),
			"progress_percentage": prop("Progress within [0,100]"),
			"completion_summary":  prop("Mandatory summary when completing"),
			"testing_notes":       prop("Optional testing notes when completing"),
		}, "action"),
		handler: s.handleTask,
	}
}

// parseDueDate accepts RFC3339 timestamps and bare dates
func parseDueDate(raw string) (*time.Time, *models.AppError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, models.NewValidationError("due_date %q is not RFC3339 or YYYY-MM-DD", raw).
		WithDetail("field", "due_date")
}

func (s *Server) handleTask(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown(taskParams...); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	tasks, appErr := s.facades.Tasks(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "create":
		branchID, err := p.RequiredUUID("git_branch_id")
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
		assignees, ok, err := p.StringSlice("assignees")
		if err != nil {
			return fail(ctx, err)
		}
		if !ok || len(assignees) == 0 {
			return fail(ctx, models.NewValidationError("task requires at least one assignee").
				WithDetail("field", "assignees"))
		}
		labels, _, err := p.StringSlice("labels")
		if err != nil {
			return fail(ctx, err)
		}
		effort, _, err := p.String("estimated_effort")
		if err != nil {
			return fail(ctx, err)
		}
		dependencies, _, err := p.UUIDSlice("dependencies")
		if err != nil {
			return fail(ctx, err)
		}
		var dueDate *time.Time
		if raw, ok, err := p.String("due_date"); err != nil {
			return fail(ctx, err)
		} else if ok {
			dueDate, err = parseDueDate(raw)
			if err != nil {
				return fail(ctx, err)
			}
		}

		task, createErr := tasks.Create(ctx, services.TaskCreateInput{
			BranchID:        branchID,
			Title:           title,
			Description:     description,
			Priority:        models.TaskPriority(priority),
			Assignees:       assignees,
			Labels:          labels,
			EstimatedEffort: effort,
			DueDate:         dueDate,
			Dependencies:    dependencies,
		})
		if createErr != nil {
			return fail(ctx, createErr)
		}
		return successEnvelope("task created", map[string]interface{}{"task": task})

	case "get":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		task, getErr := tasks.Get(ctx, id)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		return successEnvelope("task found", map[string]interface{}{"task": task})

	case "list":
		branchID, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		list, listErr := tasks.ListByBranch(ctx, branchID)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("tasks listed", map[string]interface{}{
			"tasks": list,
			"count": len(list),
		})

	case "update":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		input := services.TaskUpdateInput{}
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
		if labels, ok, sliceErr := p.StringSlice("labels"); sliceErr != nil {
			return fail(ctx, sliceErr)
		} else if ok {
			input.Labels = labels
		}
		if input.EstimatedEffort, err = p.OptionalString("estimated_effort"); err != nil {
			return fail(ctx, err)
		}
		if raw, ok, strErr := p.String("due_date"); strErr != nil {
			return fail(ctx, strErr)
		} else if ok {
			if input.DueDate, err = parseDueDate(raw); err != nil {
				return fail(ctx, err)
			}
		}
		if input.Details, err = p.OptionalString("details"); err != nil {
			return fail(ctx, err)
		}
		if progress, ok, intErr := p.Int("progress_percentage"); intErr != nil {
			return fail(ctx, intErr)
		} else if ok {
			input.Progress = &progress
		}

		task, updateErr := tasks.Update(ctx, id, input)
		if updateErr != nil {
			return fail(ctx, updateErr)
		}
		return successEnvelope("task updated", map[string]interface{}{"task": task})

	case "complete":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		summary, err := p.RequiredString("completion_summary")
		if err != nil {
			return fail(ctx, err)
		}
		notes, _, err := p.String("testing_notes")
		if err != nil {
			return fail(ctx, err)
		}
		result, completeErr := tasks.Complete(ctx, id, summary, notes)
		if completeErr != nil {
			return fail(ctx, completeErr)
		}
		data := map[string]interface{}{"task": result.Task}
		if len(result.Warnings) > 0 {
			return partialEnvelope("task completed with warnings", data, result.Warnings)
		}
		return successEnvelope("task completed", data)

	case "delete":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		if deleteErr := tasks.Delete(ctx, id); deleteErr != nil {
			return fail(ctx, deleteErr)
		}
		return successEnvelope("task deleted", map[string]interface{}{"task_id": id})

	case "next":
		branchID, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		task, nextErr := tasks.Next(ctx, branchID)
		if nextErr != nil {
			return fail(ctx, nextErr)
		}
		if task == nil {
			return successEnvelope("no actionable task", map[string]interface{}{"task": nil})
		}
		return successEnvelope("next task selected", map[string]interface{}{"task": task})

	case "add_dependency", "remove_dependency":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		dependsOn, err := p.RequiredUUID("dependency_id")
		if err != nil {
			return fail(ctx, err)
		}
		dependencies, appErr := s.facades.Dependencies(principal.UserID)
		if appErr != nil {
			return fail(ctx, appErr)
		}
		if action == "add_dependency" {
			if addErr := dependencies.Add(ctx, id, dependsOn); addErr != nil {
				return fail(ctx, addErr)
			}
			return successEnvelope("dependency added", map[string]interface{}{
				"task_id":    id,
				"depends_on": dependsOn,
			})
		}
		if removeErr := dependencies.Remove(ctx, id, dependsOn); removeErr != nil {
			return fail(ctx, removeErr)
		}
		return successEnvelope("dependency removed", map[string]interface{}{
			"task_id":    id,
			"depends_on": dependsOn,
		})

	case "list_subtasks":
		id, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		subtasks, appErr := s.facades.Subtasks(principal.UserID)
		if appErr != nil {
			return fail(ctx, appErr)
		}
		list, listErr := subtasks.ListByTask(ctx, id)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("subtasks listed", map[string]interface{}{
			"task_id":  id,
			"subtasks": list,
			"count":    len(list),
		})

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_task", action).
			WithDetail("field", "action"))
	}
}
