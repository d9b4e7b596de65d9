package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is a tool registry that can be served over an MCP transport.
type Server struct {
	name    string
	version string

	mu    sync.RWMutex
	order []string
	tools map[string]*registeredTool
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// NewServer creates an empty registry.
func NewServer(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		tools:   make(map[string]*registeredTool, 16),
	}
}

// AddTool registers a tool, replacing any previous tool of the same name.
func (s *Server) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
}

// Tools returns the registered tools in registration order.
func (s *Server) Tools() []*mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*mcp.Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].tool)
	}

	return out
}

// CallTool invokes a tool directly. Unknown tools and handler failures are
// reported as error results, the way an MCP client would see them.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	t, exists := s.tools[name]
	s.mu.RUnlock()

	if !exists {
		return ErrorResult("Tool not found: " + name), nil
	}

	data, err := json.Marshal(args)
	if err != nil {
		//nolint:nilerr // Intentionally return nil error - error is encoded in the result
		return ErrorResult("Failed to marshal input: " + err.Error()), nil
	}

	result, err := t.handler(ctx, &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name, Arguments: data},
	})
	if err != nil {
		//nolint:nilerr // Intentionally return nil error - error is encoded in the result
		return ErrorResult("Tool execution failed: " + err.Error()), nil
	}

	return result, nil
}

// MCPServer builds an SDK server carrying every registered tool.
func (s *Server) MCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: s.name, Version: s.version}, nil)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.order {
		t := s.tools[name]
		srv.AddTool(t.tool, t.handler)
	}

	return srv
}

// Run serves the tools over transport until ctx is done or the peer
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.MCPServer().Run(ctx, transport)
}

// ObjectSchema creates an object schema with the given properties, of
// which only required must be present.
func ObjectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// Prop creates a property schema from a Go type name and a description.
func Prop(goType, description string) *jsonschema.Schema {
	schema := goTypeToJSONSchema(goType)
	schema.Description = description

	return schema
}

// goTypeToJSONSchema converts a Go type string to a JSON Schema type.
func goTypeToJSONSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "float", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool", "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	case "any", "object", "map[string]any":
		return &jsonschema.Schema{Type: "object"}
	default:
		if len(goType) > 2 && goType[:2] == "[]" {
			return &jsonschema.Schema{
				Type:  "array",
				Items: goTypeToJSONSchema(goType[2:]),
			}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// JSONResult creates a CallToolResult holding v as indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to marshal result: " + err.Error())
	}

	return TextResult(string(data))
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// NewTool creates an mcp.Tool with the given parameters.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *mcp.Tool {
	return &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
}

// DecodeArguments unmarshals CallToolRequest arguments into a T.
// Missing arguments decode to the zero value.
func DecodeArguments[T any](req *mcp.CallToolRequest) (T, error) {
	var args T

	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args, nil
	}

	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return args, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	return args, nil
}
