package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ToolInvocationOutcome describes how a dispatched tool call ended.
type ToolInvocationOutcome string

const (
	// InvocationSuccess means the provider executed the tool and returned a result.
	InvocationSuccess ToolInvocationOutcome = "success"
	// InvocationToolError means the provider executed the tool but reported a domain-level error.
	InvocationToolError ToolInvocationOutcome = "tool_error"
	// InvocationTransportError means the call never produced a response from the provider.
	InvocationTransportError ToolInvocationOutcome = "transport_error"
)

// ToolInvocation is an audit record of one tool call dispatched to a tool provider.
type ToolInvocation struct {
	gorm.Model

	// RoundID identifies the user query during which the tool was invoked.
	RoundID string `json:"round_id" gorm:"index"`

	// CallID is the identifier the model assigned to the tool call.
	CallID string `json:"call_id"`

	// Provider is the launch target or URL of the tool provider.
	Provider string `json:"provider"`

	Tool string `json:"tool" gorm:"not null;index"`

	// Arguments is the decoded argument object sent to the tool provider.
	Arguments datatypes.JSON `json:"arguments" gorm:"type:jsonb"`

	Outcome ToolInvocationOutcome `json:"outcome" gorm:"type:varchar(30);not null"`

	// Output contains the text fragments returned by the tool, JSON-encoded.
	Output datatypes.JSON `json:"output" gorm:"type:jsonb"`

	// Error is the transport error message, if any.
	Error string `json:"error,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}
