package api

import (
	"context"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

var contextParams = []string{
	"action", "level", "context_id", "data", "metadata",
	"include_inherited", "delegate_to", "delegate_data",
}

func (s *Server) contextTool() *Tool {
	return &Tool{
		Name:        "manage_context",
		Description: "Operate the four-tier context hierarchy (global, project, branch, task): create, read with inheritance, merge-update, delete, resolve the effective view, and delegate knowledge upward.",
		InputSchema: schemaObject(map[string]interface{}{
			"action": propEnum("Operation to perform",
				"create", "get", "update", "delete", "resolve", "delegate"),
			"level":             propEnum("Context tier", "global", "project", "branch", "task"),
			"context_id":        prop("Context identifier: the owning entity UUID, or \"global\" at the global tier"),
			"data":              prop("Context payload object; top-level nulls delete keys on update"),
			"metadata":          prop("Optional metadata object"),
			"include_inherited": prop("On get, also return the resolved inherited view"),
			"delegate_to":       propEnum("Target tier for delegate", "global", "project", "branch"),
			"delegate_data":     prop("Payload object to promote on delegate"),
		}, "action", "level"),
		handler: s.handleContext,
	}
}

func (s *Server) handleContext(ctx context.Context, principal *auth.Principal, p Params) Envelope {
	principal, appErr := requirePrincipal(principal)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	if err := p.RejectUnknown(contextParams...); err != nil {
		return fail(ctx, err)
	}
	action, err := p.RequiredString("action")
	if err != nil {
		return fail(ctx, err)
	}
	rawLevel, err := p.RequiredString("level")
	if err != nil {
		return fail(ctx, err)
	}
	level, appErr := models.ParseContextLevel(rawLevel)
	if appErr != nil {
		return fail(ctx, appErr)
	}
	contexts, appErr := s.facades.Contexts(principal.UserID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	rawID, _, err := p.String("context_id")
	if err != nil {
		return fail(ctx, err)
	}
	id, appErr := contexts.NormalizeTarget(level, rawID)
	if appErr != nil {
		return fail(ctx, appErr)
	}

	switch action {
	case "create":
		data, _, err := p.Object("data")
		if err != nil {
			return fail(ctx, err)
		}
		metadata, _, err := p.Object("metadata")
		if err != nil {
			return fail(ctx, err)
		}
		record, createErr := contexts.Create(ctx, level, id, data, metadata)
		if createErr != nil {
			return fail(ctx, createErr)
		}
		return successEnvelope("context created", map[string]interface{}{"context": record})

	case "get":
		includeInherited, err := p.BoolDefault("include_inherited", false)
		if err != nil {
			return fail(ctx, err)
		}
		record, resolved, getErr := contexts.Get(ctx, level, id, includeInherited)
		if getErr != nil {
			return fail(ctx, getErr)
		}
		data := map[string]interface{}{"context": record}
		if resolved != nil {
			data["resolved"] = resolved
		}
		return successEnvelope("context found", data)

	case "update":
		data, ok, err := p.Object("data")
		if err != nil {
			return fail(ctx, err)
		}
		if !ok {
			return fail(ctx, models.NewMissingFieldError("data"))
		}
		record, updateErr := contexts.Update(ctx, level, id, data)
		if updateErr != nil {
			return fail(ctx, updateErr)
		}
		return successEnvelope("context updated", map[string]interface{}{"context": record})

	case "delete":
		if deleteErr := contexts.Delete(ctx, level, id); deleteErr != nil {
			return fail(ctx, deleteErr)
		}
		return successEnvelope("context deleted", map[string]interface{}{
			"level":      level,
			"context_id": id,
		})

	case "resolve":
		resolved, resolveErr := contexts.Resolve(ctx, level, id)
		if resolveErr != nil {
			return fail(ctx, resolveErr)
		}
		return successEnvelope("context resolved", map[string]interface{}{"resolved": resolved})

	case "delegate":
		rawTarget, err := p.RequiredString("delegate_to")
		if err != nil {
			return fail(ctx, err)
		}
		targetLevel, appErr := models.ParseContextLevel(rawTarget)
		if appErr != nil {
			return fail(ctx, appErr)
		}
		payload, ok, err := p.Object("delegate_data")
		if err != nil {
			return fail(ctx, err)
		}
		if !ok {
			return fail(ctx, models.NewMissingFieldError("delegate_data"))
		}
		delegation, delegateErr := contexts.Delegate(ctx, level, id, targetLevel, payload)
		if delegateErr != nil {
			return fail(ctx, delegateErr)
		}
		return successEnvelope("delegation queued", map[string]interface{}{"delegation": delegation})

	default:
		return fail(ctx, models.NewValidationError("unknown action %q for manage_context", action).
			WithDetail("field", "action"))
	}
}
