// Package tools defines the capabilities advertised to the model and
// the dispatcher that executes requested calls.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Resolve when no tool matches the
// requested name. It is never fatal; the dispatcher converts it into
// a diagnostic observation for the model.
var ErrUnknownTool = errors.New("unknown tool")

// Tool represents a callable capability.
type Tool struct {
	// Name is the stable identifier the model uses to request the tool.
	Name        string
	Description string
	// Parameters is the JSON-schema object shown to the model.
	Parameters map[string]any
	// IdentityParam names a parameter that is always overwritten with
	// the authenticated user id before invocation. The model is never
	// trusted to assert identity.
	IdentityParam string
	Handler       func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the available tools in registration order. The order
// determines how tools are advertised to the model; it is not
// semantically significant but must be deterministic.
//
// The registry is populated once at startup and read-only afterwards,
// so it needs no locking.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registration is idempotent by name: the first
// registration wins and later ones are ignored.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; exists {
		return
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Resolve returns the tool with the given name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (*Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns the advertised tool schemas in registration order, in
// the function-tool form the chat completions API expects.
func (r *Registry) List() []map[string]any {
	out := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
