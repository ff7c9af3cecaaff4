package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// fail shapes a domain error as a failure envelope with the request's
// correlation id attached
func fail(ctx context.Context, err error) Envelope {
	return errorEnvelope(err, correlationFromContext(ctx))
}

func (s *Server) projectTool() *Tool {
	return &Tool{
		Name:        "manage_project",
		Description: "Create, inspect, maintain and delete projects. Maintenance actions check branch counter integrity and rebalance agent assignments.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"create", "get", "list", "update", "delete",
				"project_health_check", "cleanup_obsolete",
				"validate_integrity", "rebalance_agents"),
			"project_id":  prop("Project identifier (UUID)"),
			"name":        prop("Project name, unique per user; get accepts it instead of project_id"),
			"description": prop("Free-form project description"),
		}, "action"),
		handler: s.handleProject,
	}
}

func (s *Server) handleProject(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown("action", "project_id", "name", "description"); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	projects, appErr := s.facades.Projects(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "create":
		name, err := p.RequiredString("name")
		if err != nil {
			return fail(ctx, err)
		}
		description, _, err := p.String("description")
		if err != nil {
			return fail(ctx, err)
		}
		project, createErr := projects.Create(ctx, name, description)
		if createErr != nil {
			return fail(ctx, createErr)
		}
		return successEnvelope("project created", map[string]interface{}{"project": project})

	case "get":
		if name, ok, err := p.String("name"); err != nil {
			return fail(ctx, err)
		} else if ok && !p.Has("project_id") {
			project, getErr := projects.GetByName(ctx, name)
			if getErr != nil {
				return fail(ctx, getErr)
			}
			return successEnvelope("project found", map[string]interface{}{"project": project})
		}
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		project, getErr := projects.Get(ctx, id)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		return successEnvelope("project found", map[string]interface{}{"project": project})

	case "list":
		list, listErr := projects.List(ctx)
		if listErr != nil {
			return fail(ctx, listErr)
		}
		return successEnvelope("projects listed", map[string]interface{}{
			"projects": list,
			"count":    len(list),
		})

	case "update":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		name, err := p.OptionalString("name")
		if err != nil {
			return fail(ctx, err)
		}
		description, err := p.OptionalString("description")
		if err != nil {
			return fail(ctx, err)
		}
		project, updateErr := projects.Update(ctx, id, name, description)
		if updateErr != nil {
			return fail(ctx, updateErr)
		}
		return successEnvelope("project updated", map[string]interface{}{"project": project})

	case "delete":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		if deleteErr := projects.Delete(ctx, id); deleteErr != nil {
			return fail(ctx, deleteErr)
		}
		return successEnvelope("project deleted", map[string]interface{}{"project_id": id})

	case "project_health_check":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		health, healthErr := projects.HealthCheck(ctx, id)
		if healthErr != nil {
			return fail(ctx, healthErr)
		}
		if !health.Healthy {
			return partialEnvelope("project health check found issues",
				map[string]interface{}{"health": health},
				[]string{"branch counters drifted from recount"})
		}
		return successEnvelope("project healthy", map[string]interface{}{"health": health})

	case "validate_integrity":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		report, reportErr := projects.ValidateIntegrity(ctx, id)
		if reportErr != nil {
			return fail(ctx, reportErr)
		}
		return successEnvelope("integrity validated", report)

	case "cleanup_obsolete":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		report, cleanupErr := projects.CleanupObsolete(ctx, id)
		if cleanupErr != nil {
			return fail(ctx, cleanupErr)
		}
		return successEnvelope("obsolete data cleaned", report)

	case "rebalance_agents":
		id, err := p.RequiredUUID("project_id")
		if err != nil {
			return fail(ctx, err)
		}
		report, rebalanceErr := projects.RebalanceAgents(ctx, id)
		if rebalanceErr != nil {
			return fail(ctx, rebalanceErr)
		}
		return successEnvelope("agents rebalanced", report)

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_project", action).
			WithDetail("field", "action"))
	}
}
