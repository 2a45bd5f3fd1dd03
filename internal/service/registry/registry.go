// Package registry holds the tools discovered from a tool provider and translates them
// into the function schema format expected by chat completion APIs.
package registry

import (
	"github.com/mcpjungle/mcpchat/pkg/types"
)

// Registry is an immutable, ordered collection of tools indexed by name.
// It is safe for concurrent use because nothing modifies it after Build returns.
type Registry struct {
	tools   []types.Tool
	schemas []types.ToolSchema
	index   map[string]int

	// duplicates holds names that were discovered more than once; only the first occurrence is kept
	duplicates []string
}

// Build creates a registry from the tools discovered in a tool provider session.
// Tool order is preserved. If a name appears more than once, the later entries are dropped.
func Build(tools []types.Tool) *Registry {
	r := &Registry{
		tools:   make([]types.Tool, 0, len(tools)),
		schemas: make([]types.ToolSchema, 0, len(tools)),
		index:   make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		if _, exists := r.index[t.Name]; exists {
			r.duplicates = append(r.duplicates, t.Name)
			continue
		}
		r.index[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
		r.schemas = append(r.schemas, ToSchema(t))
	}
	return r
}

// ToSchema converts a discovered tool into a function schema entry.
// Properties are passed through verbatim. A tool without a required list gets an empty one,
// meaning the model is not forced to supply any argument.
func ToSchema(t types.Tool) types.ToolSchema {
	properties := t.InputSchema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	required := t.InputSchema.Required
	if required == nil {
		required = []string{}
	}

	return types.ToolSchema{
		Type: "function",
		Function: types.FunctionSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters: types.FunctionParameters{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		},
	}
}

// Lookup returns the tool with the given name and a boolean indicating if it was found.
func (r *Registry) Lookup(name string) (types.Tool, bool) {
	i, ok := r.index[name]
	if !ok {
		return types.Tool{}, false
	}
	return r.tools[i], true
}

// Schemas returns the function schema entries for all tools, in discovery order.
func (r *Registry) Schemas() []types.ToolSchema {
	out := make([]types.ToolSchema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// Tools returns all tools in discovery order.
func (r *Registry) Tools() []types.Tool {
	out := make([]types.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the names of all tools in discovery order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of tools in the registry.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Duplicates returns the names that were discovered more than once.
func (r *Registry) Duplicates() []string {
	return append([]string(nil), r.duplicates...)
}
