package api

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// sseKeepAlive is the comment-ping period keeping proxies from closing
// idle streams
const sseKeepAlive = 25 * time.Second

// handleEvents streams the caller's change events over SSE. The
// subscription is filtered to the authenticated user before any event
// reaches the channel.
func (s *Server) handleEvents(c *gin.Context) {
	principal, ok := auth.PrincipalFrom(c.Request.Context())
	if !ok {
		abortUnauthenticated(c, "missing principal")
		return
	}

	sub := s.dispatcher.Subscribe(principal.UserID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, open := <-sub.C:
			if !open {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return true
			}
			c.SSEvent(string(event.Type), string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("ping", stamp())
			return true
		}
	})
}

// requirePrincipal shapes a missing identity as UNAUTHENTICATED
func requirePrincipal(principal *auth.Principal) (*auth.Principal, *models.AppError) {
	if principal == nil || principal.UserID == "" {
		return nil, models.NewUnauthenticatedError("user identity required")
	}
	return principal, nil
}
