package api

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// protocolVersion is the MCP revision this server speaks
const protocolVersion = "2025-06-18"

// ToolHandler executes one tool call for an authenticated principal
type ToolHandler func(ctx context.Context, principal *auth.Principal, params Params) Envelope

// Tool is one callable entry in the registry
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`

	handler  ToolHandler
	compiled *gojsonschema.Schema
}

// Registry holds the tool set exposed over tools/list and tools/call
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register adds a tool. The input schema is compiled once; a schema that
// does not compile is a programming error surfaced at startup.
func (r *Registry) Register(tool *Tool) error {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return err
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	tool.compiled = compiled
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// List returns the registered tools in registration order
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the sorted tool names
func (r *Registry) Names() []string {
	names := append([]string{}, r.order...)
	sort.Strings(names)
	return names
}

// Call validates the arguments against the tool's schema and runs the
// handler. Unknown tools and schema violations come back as failure
// envelopes, never transport errors: the RPC layer stays happy as long as
// the request parses.
func (r *Registry) Call(ctx context.Context, principal *auth.Principal, name string, arguments Params) Envelope {
	tool, ok := r.tools[name]
	if !ok {
		return errorEnvelope(models.NewNotFoundError("tool", name).
			WithDetail("available", r.Names()), correlationFromContext(ctx))
	}

	if arguments == nil {
		arguments = Params{}
	}
	result, err := tool.compiled.Validate(gojsonschema.NewGoLoader(map[string]interface{}(arguments)))
	if err != nil {
		return errorEnvelope(models.NewInternalError(err), correlationFromContext(ctx))
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return errorEnvelope(models.NewValidationError("invalid arguments for %s", name).
			WithDetail("violations", violations), correlationFromContext(ctx))
	}

	return tool.handler(ctx, principal, arguments)
}

// schemaObject builds the common tool schema shape: an object with the
// given properties, the named ones required, nothing else allowed. Types
// are left loose where the coercion layer accepts several shapes.
func schemaObject(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// prop describes one loosely-typed schema property
func prop(description string) map[string]interface{} {
	return map[string]interface{}{"description": description}
}

// propEnum describes a property constrained to a value set
func propEnum(description string, values ...string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{"description": description, "enum": enum}
}
