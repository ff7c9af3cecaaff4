package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

type correlationKey struct{}

const (
	correlationHeader     = "X-Correlation-ID"
	protocolVersionHeader = "MCP-Protocol-Version"
)

// CorrelationMiddleware tags every request with a correlation id, taking
// the caller's when one is supplied. The MCP protocol version header is
// echoed back when the client sends one.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(correlationHeader, id)
		if v := c.GetHeader(protocolVersionHeader); v != "" {
			c.Writer.Header().Set(protocolVersionHeader, v)
		}
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), correlationKey{}, id))
		c.Next()
	}
}

// correlationFromContext returns the request's correlation id, if any
func correlationFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestLogger logs one line per request with latency and status
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	logger = logger.WithPrefix("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := map[string]interface{}{
			"method":         c.Request.Method,
			"path":           path,
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"client_ip":      c.ClientIP(),
			"correlation_id": correlationFromContext(c.Request.Context()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("Request failed", fields)
			return
		}
		logger.Info("Request handled", fields)
	}
}

// MetricsMiddleware records request counts and latency histograms
func MetricsMiddleware(metrics observability.MetricsClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		labels := map[string]string{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": http.StatusText(c.Writer.Status()),
		}
		metrics.IncrementCounter("http_requests", 1, labels)
		metrics.RecordDuration("http_request_duration", time.Since(start), labels)
	}
}

const apiTokenHeader = "X-API-Token"

// AuthMiddleware verifies the caller's token and binds the principal to
// the request context. Tokens arrive as a Bearer authorization or, for
// older clients, in the X-API-Token header.
func AuthMiddleware(service *auth.Service, logger observability.Logger) gin.HandlerFunc {
	logger = logger.WithPrefix("auth")
	return func(c *gin.Context) {
		raw := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abortUnauthenticated(c, "malformed Authorization header")
				return
			}
			raw = strings.TrimSpace(parts[1])
		} else if legacy := c.GetHeader(apiTokenHeader); legacy != "" {
			raw = strings.TrimSpace(legacy)
		}
		if raw == "" {
			abortUnauthenticated(c, "missing credentials")
			return
		}

		principal, err := service.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Warn("Token rejected", map[string]interface{}{
				"error":          err.Error(),
				"correlation_id": correlationFromContext(c.Request.Context()),
			})
			abortUnauthenticated(c, "invalid or expired token")
			return
		}

		c.Request = c.Request.WithContext(
			auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, reason string) {
	env := errorEnvelope(models.NewUnauthenticatedError(reason),
		correlationFromContext(c.Request.Context()))
	c.AbortWithStatusJSON(http.StatusUnauthorized, env)
}

// userRateLimiter hands out one token bucket per user
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserRateLimiter(perMinute int) *userRateLimiter {
	return &userRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (l *userRateLimiter) allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware throttles per authenticated user. Disabled limits
// never install this middleware.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := newUserRateLimiter(perMinute)
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFrom(c.Request.Context())
		key := c.ClientIP()
		if ok {
			key = principal.UserID
		}
		if !limiter.allow(key) {
			env := errorEnvelope(
				models.NewAppError(models.ErrCodeRateLimited, "rate limit exceeded").
					WithDetail("limit_per_minute", perMinute),
				correlationFromContext(c.Request.Context()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, env)
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware bounds request handling. Handlers observe the
// deadline through the request context; expiry surfaces as TIMEOUT.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
