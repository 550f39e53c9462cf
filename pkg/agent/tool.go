package agent

import (
	"context"
)

// Permission names attached to cloud tools.
const (
	PermissionRead  = "aws:read"
	PermissionWrite = "aws:write"
)

// ToolPermission describes a capability a tool requires.
// Example: aws:read, aws:write
type ToolPermission struct {
	// Name is a stable identifier of the permission.
	Name string `json:"name"`
	// Description explains what the permission allows.
	Description string `json:"description,omitempty"`
}

// Parameter is one top-level input member of a tool, in declaration order.
type Parameter struct {
	Name string `json:"name"`
	// Type is a coarse shape name: string, integer, number, boolean, array,
	// object, timestamp, blob or any.
	Type string `json:"type"`
}

// ToolDescriptor declares the static interface of a tool.
// InputSchema is a JSON Schema (draft 2020-12) in UTF-8 bytes.
type ToolDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  []Parameter      `json:"parameters"`
	InputSchema []byte           `json:"input_schema,omitempty"`
	Permissions []ToolPermission `json:"permissions,omitempty"`
}

// ParameterNames returns the declared parameter names in order.
func (d ToolDescriptor) ParameterNames() []string {
	out := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		out = append(out, p.Name)
	}
	return out
}

// Tool defines a callable unit with a schema-described input and a permission model.
type Tool interface {
	// Describe returns the public descriptor (schema, permissions).
	Describe() ToolDescriptor
	// Invoke executes the tool with validated args and returns JSON-compatible output.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc is the typed handler behind a FuncTool.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncTool adapts a descriptor and a handler function into a Tool.
type FuncTool struct {
	Descriptor ToolDescriptor
	Handler    HandlerFunc
}

func (f FuncTool) Describe() ToolDescriptor { return f.Descriptor }

func (f FuncTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.Handler(ctx, args)
}

// DescribeTool is a helper to get a ToolDescriptor from a Tool (nil-safe).
func DescribeTool(t Tool) ToolDescriptor {
	if t == nil {
		return ToolDescriptor{}
	}
	return t.Describe()
}
