// Package api is the HTTP surface: one JSON-RPC endpoint speaking the MCP
// tool protocol, a live event stream, and the usual health and metrics
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phamhung075/4genthub-sub028/internal/config"
	"github.com/phamhung075/4genthub-sub028/internal/database"
	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/facade"
	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Server is the API server
type Server struct {
	router     *gin.Engine
	server     *http.Server
	registry   *Registry
	facades    *facade.Factory
	dispatcher *events.Dispatcher
	db         *database.Database
	cfg        *config.Config
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewServer wires routes and middleware and registers the tool set
func NewServer(
	cfg *config.Config,
	facades *facade.Factory,
	dispatcher *events.Dispatcher,
	db *database.Database,
	authService *auth.Service,
	logger observability.Logger,
	metrics observability.MetricsClient,
) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CorrelationMiddleware())
	router.Use(RequestLogger(logger))
	router.Use(MetricsMiddleware(metrics))

	s := &Server{
		router:     router,
		registry:   NewRegistry(),
		facades:    facades,
		dispatcher: dispatcher,
		db:         db,
		cfg:        cfg,
		logger:     logger.WithPrefix("api"),
		metrics:    metrics,
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}

	router.GET("/health", s.handleHealth)
	router.GET("/capabilities", s.handleCapabilities)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authed := router.Group("/")
	authed.Use(AuthMiddleware(authService, logger))
	if cfg.Limits.RateLimitEnabled {
		authed.Use(RateLimitMiddleware(cfg.Limits.RateLimitPerMinute))
	}
	authed.POST("/mcp",
		TimeoutMiddleware(cfg.API.RequestTimeout),
		s.handleRPC)
	authed.GET("/mcp/sse", s.handleEvents)

	s.server = &http.Server{
		Addr:           cfg.API.ListenAddress,
		Handler:        router,
		ReadTimeout:    cfg.API.ReadTimeout,
		WriteTimeout:   cfg.API.WriteTimeout,
		IdleTimeout:    cfg.API.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return s, nil
}

// registerTools installs every enabled tool
func (s *Server) registerTools() error {
	for _, tool := range []*Tool{
		s.projectTool(),
		s.branchTool(),
		s.taskTool(),
		s.subtaskTool(),
		s.contextTool(),
		s.dependencyTool(),
		s.agentTool(),
		s.callAgentTool(),
		s.healthTool(),
		s.capabilitiesTool(),
		s.whoamiTool(),
	} {
		if !s.cfg.Tools.Enabled(tool.Name) {
			s.logger.Info("Tool disabled by configuration", map[string]interface{}{
				"tool": tool.Name,
			})
			continue
		}
		if err := s.registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Start begins serving and blocks until the listener fails or closes
func (s *Server) Start() error {
	s.logger.Info("API server listening", map[string]interface{}{
		"address": s.server.Addr,
		"tools":   s.registry.Names(),
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := map[string]string{"database": "ok"}
	if err := s.db.Ping(ctx); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		components["database"] = err.Error()
	}
	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  stamp(),
	})
}

func (s *Server) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocol_version": protocolVersion,
		"tools":            s.registry.Names(),
		"capabilities": gin.H{
			"tools":  gin.H{"listChanged": false},
			"events": gin.H{"sse": true},
		},
	})
}

// JSON-RPC plumbing

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// handleRPC dispatches one JSON-RPC request. Tool failures are carried
// inside the result envelope; RPC errors are reserved for requests the
// transport itself cannot process.
func (s *Server) handleRPC(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Limits.MaxPayloadBytes)

	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: rpcParseError, Message: "parse error", Data: err.Error()},
		})
		return
	}
	if req.JSONRPC != "2.0" {
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: rpcInvalidRequest, Message: "jsonrpc must be \"2.0\""},
		})
		return
	}

	ctx := c.Request.Context()
	principal, _ := auth.PrincipalFrom(ctx)

	switch req.Method {
	case "initialize":
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: gin.H{
				"protocolVersion": protocolVersion,
				"capabilities":    gin.H{"tools": gin.H{"listChanged": false}},
				"serverInfo":      gin.H{"name": "agenthub", "version": "1.0.0"},
			},
		})
	case "notifications/initialized", "ping":
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: gin.H{}})
	case "tools/list":
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: gin.H{"tools": s.registry.List()},
		})
	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			c.JSON(http.StatusOK, rpcResponse{
				JSONRPC: "2.0", ID: req.ID,
				Error: &rpcError{Code: rpcInvalidParams, Message: "tools/call requires a tool name"},
			})
			return
		}
		env := s.registry.Call(ctx, principal, params.Name, Params(params.Arguments))
		if ctx.Err() == context.DeadlineExceeded {
			env = errorEnvelope(
				models.NewAppError(models.ErrCodeTimeout, "request deadline exceeded").
					WithCause(ctx.Err()),
				correlationFromContext(ctx))
		}
		s.metrics.IncrementCounter("tool_calls", 1, map[string]string{
			"tool":   params.Name,
			"status": env.Status,
		})
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: toolResult(env),
		})
	default:
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: rpcMethodNotFound, Message: "method not found", Data: req.Method},
		})
	}
}

// toolResult renders an envelope as MCP tool-call content
func toolResult(env Envelope) gin.H {
	text, err := json.Marshal(env)
	if err != nil {
		text = []byte(`{"status":"error","success":false,"error_code":"INTERNAL_ERROR"}`)
	}
	return gin.H{
		"content":           []gin.H{{"type": "text", "text": string(text)}},
		"structuredContent": env,
		"isError":           !env.Success,
	}
}
