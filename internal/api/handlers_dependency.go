package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func (s *Server) dependencyTool() *Tool {
	return &Tool{
		Name:        "manage_dependency",
		Description: "Inspect and edit the task dependency graph: add and remove edges, list direct dependencies, list what blocks a task, and dump the full graph.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"add_dependency", "remove_dependency", "get_dependencies",
				"clear_dependencies", "get_blocking_tasks", "graph"),
			"task_id":       prop("Task identifier (UUID)"),
			"dependency_id": prop("Task UUID the task depends on"),
		}, "action"),
		handler: s.handleDependency,
	}
}

func (s *Server) handleDependency(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown("action", "task_id", "dependency_id"); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	dependencies, appErr := s.facades.Dependencies(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "add_dependency", "remove_dependency":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		dependsOn, err := p.RequiredUUID("dependency_id")
		if err != nil {
			return fail(ctx, err)
		}
		if action == "add_dependency" {
			if addErr := dependencies.Add(ctx, taskID, dependsOn); addErr != nil {
				return fail(ctx, addErr)
			}
			return successEnvelope("dependency added", map[string]interface{}{
				"task_id":    taskID,
				"depends_on": dependsOn,
			})
		}
		if removeErr := dependencies.Remove(ctx, taskID, dependsOn); removeErr != nil {
			return fail(ctx, removeErr)
		}
		return successEnvelope("dependency removed", map[string]interface{}{
			"task_id":    taskID,
			"depends_on": dependsOn,
		})

	case "get_dependencies":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		direct, listErr := dependencies.ListFor(ctx, taskID)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("dependencies listed", map[string]interface{}{
			"task_id":    taskID,
			"depends_on": direct,
			"count":      len(direct),
		})

	case "clear_dependencies":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		if clearErr := dependencies.Clear(ctx, taskID); clearErr != nil {
			return fail(ctx, clearErr)
		}
		return successEnvelope("dependencies cleared", map[string]interface{}{"task_id": taskID})

	case "get_blocking_tasks":
		taskID, err := p.RequiredUUID("task_id")
		if err != nil {
			return fail(ctx, err)
		}
		blocking, blockErr := dependencies.BlockingTasks(ctx, taskID)
		if blockErr != nil {
			return fail(ctx, blockErr)
		}
		return successEnvelope("blocking tasks listed", map[string]interface{}{
			"task_id":           taskID,
			"blocking_task_ids": blocking,
			"is_blocked":        len(blocking) > 0,
		})

	case "graph":
		graph, graphErr := dependencies.Graph(ctx)
		if graphErr != nil {
			return fail(ctx, graphErr)
		}
		return successEnvelope("dependency graph", graph)

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_dependency", action).
			WithDetail("field", "action"))
	}
}
