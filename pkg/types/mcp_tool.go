package types

// ToolInputSchema defines the schema for the input parameters of a tool
type ToolInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Tool describes a tool discovered from an MCP tool provider.
// The name is the stable identifier used both for discovery and for dispatch.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"input_schema"`
}

// ToolSchema is a single entry of the "tools" list sent to a chat completions endpoint.
type ToolSchema struct {
	// Type is always "function"
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable function to the model.
type FunctionSchema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  FunctionParameters `json:"parameters"`
}

// FunctionParameters is the JSON schema object describing a function's arguments.
// Properties and Required are never nil so that they serialize as {} and [] respectively.
type FunctionParameters struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}
