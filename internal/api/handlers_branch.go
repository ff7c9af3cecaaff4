package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func (s *Server) branchTool() *Tool {
	return &Tool{
		Name:        "manage_git_branch",
		Description: "Create, inspect, update and delete git branches (task trees), manage their agent assignments and repair task counters.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"create", "get", "list", "update", "delete",
				"assign_agent", "unassign_agent", "statistics",
				"recompute_counters"),
			"project_id":      prop("Owning project identifier (UUID)"),
			"git_branch_id":   prop("Branch identifier (UUID)"),
			"git_branch_name": prop("Branch name, unique per project"),
			"description":     prop("Free-form branch description"),
			"agent_id":        prop("Agent UUID or @kebab-case name for assignment actions"),
		}, "action"),
		handler: s.handleBranch,
	}
}

func (s *Server) handleBranch(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown("action", "project_id", "git_branch_id", "git_branch_name", "description", "agent_id"); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	branches, appErr := s.facades.Branches(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "create":
		projectID, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		name, err := p.RequiredString("git_branch_name")
		if err != nil {
			return fail(ctx, err)
		}
		description, _, err := p.String("description")
		if err != nil {
			return fail(ctx, err)
		}
		branch, createErr := branches.Create(ctx, projectID, name, description)
		if createErr != nil {
			return fail(ctx, createErr)
		}
		return successEnvelope("branch created", map[string]interface{}{"git_branch": branch})

	case "get":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		branch, getErr := branches.Get(ctx, id)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		return successEnvelope("branch found", map[string]interface{}{"git_branch": branch})

	case "list":
		if projectID, ok, err := p.UUID("project_id"); err != nil {
			return fail(ctx, err)
		} else if ok {
			list, listErr := branches.ListByProject(ctx, projectID)
			if listErr != nil {
				return fail(ctx, listErr)
			}
			return successEnvelope("branches listed", map[string]interface{}{
				"git_branchs": list,
				"count":       len(list),
			})
		}
		list, listErr := branches.List(ctx)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("branches listed", map[string]interface{}{
			"git_branchs": list,
			"count":       len(list),
		})

	case "update":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		name, err := p.OptionalString("git_branch_name")
		if err != nil {
			return fail(ctx, err)
		}
		description, err := p.OptionalString("description")
		if err != nil {
			return fail(ctx, err)
		}
		branch, updateErr := branches.Update(ctx, id, name, description)
		if updateErr != nil {
			return fail(ctx, updateErr)
		}
		return successEnvelope("branch updated", map[string]interface{}{"git_branch": branch})

	case "delete":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		if deleteErr := branches.Delete(ctx, id); deleteErr != nil {
			return fail(ctx, deleteErr)
		}
		return successEnvelope("branch deleted", map[string]interface{}{"git_branch_id": id})

	case "assign_agent", "unassign_agent":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		rawAgent, err := p.RequiredString("agent_id")
		if err != nil {
			return fail(ctx, err)
		}
		agents, appErr := s.facades.Agents(principal.UserID)
		if appErr != nil {
			return fail(ctx, appErr)
		}
		if action == "assign_agent" {
			agent, assignErr := agents.Assign(ctx, id, rawAgent)
			if assignErr != nil {
				return fail(ctx, assignErr)
			}
			return successEnvelope("agent assigned", map[string]interface{}{
				"git_branch_id": id,
				"agent":         agent,
			})
		}
		if unassignErr := agents.Unassign(ctx, id, rawAgent); unassignErr != nil {
			return fail(ctx, unassignErr)
		}
		return successEnvelope("agent unassigned", map[string]interface{}{
			"git_branch_id": id,
		})

	case "statistics":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		stats, statsErr := branches.Statistics(ctx, id)
		if statsErr != nil {
			return fail(ctx, statsErr)
		}
		return successEnvelope("branch statistics", stats)

	case "recompute_counters":
		id, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		finding, changed, recountErr := branches.RecomputeCounters(ctx, id)
		if recountErr != nil {
			return fail(ctx, recountErr)
		}
		data := map[string]interface{}{"counters": finding, "repaired": changed}
		if changed {
			return partialEnvelope("branch counters repaired", data,
				[]string{"stored counters drifted from recount"})
		}
		return successEnvelope("branch counters verified", data)

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_git_branch", action).
			WithDetail("field", "action"))
	}
}
