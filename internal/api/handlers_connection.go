package api

import (
	"context"
	"time"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
)

func (s *Server) healthTool() *Tool {
	return &Tool{
		Name:        "health_check",
		Description: "Report server liveness and the health of its backing components.",
		InputSchema: schemaObject(map[string]interface{}{}),
		handler:     s.handleHealthTool,
	}
}

func (s *Server) handleHealthTool(ctx context.Context, _ *auth.Principal, _ Params) Envelope {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	components := map[string]interface{}{"database": "ok"}
	healthy := true
	if pingErr := s.db.Ping(pingCtx); pingErr != nil {
		components["database"] = pingErr.Error()
		healthy = false
	}
	data := map[string]interface{}{
		"healthy":    healthy,
		"components": components,
	}
	if !healthy {
		return partialEnvelope("server degraded", data, []string{"database unreachable"})
	}
	return successEnvelope("server healthy", data)
}

func (s *Server) capabilitiesTool() *Tool {
	return &Tool{
		Name:        "get_server_capabilities",
		Description: "List the protocol revision and the tools this server exposes.",
		InputSchema: schemaObject(map[string]interface{}{}),
		handler: func(ctx context.Context, _ *auth.Principal, _ Params) Envelope {
			return successEnvelope("server capabilities", map[string]interface{}{
				"protocol_version": protocolVersion,
				"tools":            s.registry.Names(),
			})
		},
	}
}

func (s *Server) whoamiTool() *Tool {
	return &Tool{
		Name:        "whoami",
		Description: "Return the authenticated identity behind this connection.",
		InputSchema: schemaObject(map[string]interface{}{}),
		handler: func(ctx context.Context, principal *auth.Principal, _ Params) Envelope {
			principal, appErr := requirePrincipal(principal)
			if appErr != nil {
				return fail(ctx, appErr)
			}
			return successEnvelope("authenticated identity", map[string]interface{}{
				"user_id":    principal.UserID,
				"email":      principal.Email,
				"token_type": principal.TokenType,
				"scopes":     principal.Scopes,
			})
		},
	}
}
