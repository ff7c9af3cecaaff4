package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func (s *Server) agentTool() *Tool {
	return &Tool{
		Name:        "manage_agent",
		Description: "Register, list and remove agent identities, and bind them to branches. Agents can be addressed by UUID or by @kebab-case name.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"register", "get", "list", "unregister", "assign", "unassign"),
			"agent_id":      prop("Agent UUID or @kebab-case name"),
			"project_id":    prop("Project namespace for name-derived agent ids"),
			"git_branch_id": prop("Branch identifier for assignment actions"),
			"name":          prop("Agent name when registering"),
			"description":   prop("Agent description"),
			"capabilities":  prop("Capability object"),
		}, "action"),
		handler: s.handleAgent,
	}
}

func (s *Server) handleAgent(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown("action", "agent_id", "project_id", "git_branch_id", "name", "description", "capabilities"); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	agents, appErr := s.facades.Agents(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "register":
		projectID, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		name, err := p.RequiredString("name")
		if err != nil {
			return fail(ctx, err)
		}
		description, _, err := p.String("description")
		if err != nil {
			return fail(ctx, err)
		}
		capabilities, _, err := p.Object("capabilities")
		if err != nil {
			return fail(ctx, err)
		}
		agent, registerErr := agents.Register(ctx, projectID, name, description, capabilities)
		if registerErr != nil {
			return fail(ctx, registerErr)
		}
		return successEnvelope("agent registered", map[string]interface{}{"agent": agent})

	case "get":
		id, err := p.RequiredUUID("agent_id")
		if err != nil {
			return fail(ctx, err)
		}
		agent, getErr := agents.Get(ctx, id)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		return successEnvelope("agent found", map[string]interface{}{"agent": agent})

	case "list":
		list, listErr := agents.List(ctx)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("agents listed", map[string]interface{}{
			"agents": list,
			"count":  len(list),
		})

	case "unregister":
		id, err := p.RequiredUUID("agent_id")
		if err != nil {
			return fail(ctx, err)
		}
		if unregisterErr := agents.Unregister(ctx, id); unregisterErr != nil {
			return fail(ctx, unregisterErr)
		}
		return successEnvelope("agent unregistered", map[string]interface{}{"agent_id": id})

	case "assign", "unassign":
		branchID, err := p.RequiredUUID("git_branch_id")
		if err != nil {
			return fail(ctx, err)
		}
		rawAgent, err := p.RequiredString("agent_id")
		if err != nil {
			return fail(ctx, err)
		}
		if action == "assign" {
			agent, assignErr := agents.Assign(ctx, branchID, rawAgent)
			if assignErr != nil {
				return fail(ctx, assignErr)
			}
			return successEnvelope("agent assigned", map[string]interface{}{
				"git_branch_id": branchID,
				"agent":         agent,
			})
		}
		if unassignErr := agents.Unassign(ctx, branchID, rawAgent); unassignErr != nil {
			return fail(ctx, unassignErr)
		}
		return successEnvelope("agent unassigned", map[string]interface{}{
			"git_branch_id": branchID,
		})

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_agent", action).
			WithDetail("field", "action"))
	}
}

func (s *Server) callAgentTool() *Tool {
	return &Tool{
		Name:        "call_agent",
		Description: "Resolve an agent by name and return its definition and capabilities.",
		InputSchema: schemaObject(map[string]interface{}{
			"agent_name": prop("Agent name, with or without the leading @"),
			"name_agent": prop("Legacy spelling of agent_name"),
		}),
		handler: s.handleCallAgent,
	}
}

func (s *Server) handleCallAgent(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown("agent_name", "name_agent"); err != nil {
		return fail(ctx, err)
	}
	name, ok, err := p.String("agent_name")
	if err != nil {
		return fail(ctx, err)
	}
	if !ok {
		// older clients send name_agent
		if name, ok, err = p.String("name_agent"); err != nil {
			return fail(ctx, err)
		}
	}
	if !ok || name == "" {
		return fail(ctx, models.NewMissingFieldError("agent_name"))
	}
	agents, appErr := s.facades.Agents(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	agent, callErr := agents.Call(ctx, name)
	if callErr != nil {
		return fail(ctx, callErr)
	}
	return successEnvelope("agent resolved", map[string]interface{}{"agent": agent})
}
