package types

import (
	"errors"
	"fmt"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-emitted request to invoke a tool.
// Arguments holds the JSON-encoded argument object exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a conversation history.
// The set of implementations is closed: UserMessage, AssistantMessage and ToolResultMessage.
type Message interface {
	Role() Role
	isMessage()
}

// UserMessage carries free text typed by the user.
type UserMessage struct {
	Content string
}

// AssistantMessage is a reply produced by the model.
type AssistantMessage struct {
	// Content is the primary reply text, may be empty when the model only requests tools.
	Content string
	// ReasoningContent is the alternate reasoning text some providers return alongside Content.
	ReasoningContent string
	ToolCalls        []ToolCall
}

// ToolResultMessage answers a tool call that appeared earlier in the same history.
type ToolResultMessage struct {
	ToolCallID string
	Content    string
}

func (UserMessage) Role() Role       { return RoleUser }
func (AssistantMessage) Role() Role  { return RoleAssistant }
func (ToolResultMessage) Role() Role { return RoleTool }

func (UserMessage) isMessage()       {}
func (AssistantMessage) isMessage()  {}
func (ToolResultMessage) isMessage() {}

// HasToolCalls returns true if the model requested at least one tool.
func (m AssistantMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ErrUncorrelatedToolResult is returned when a tool result does not answer an earlier tool call.
var ErrUncorrelatedToolResult = errors.New("tool result does not answer a pending tool call")

// History is an append-only, ordered sequence of conversation messages.
// The zero value is an empty history ready to use.
type History struct {
	messages []Message
	// pending holds the ids of tool calls that have not been answered yet
	pending map[string]bool
}

// NewHistory creates a history that starts with the given user query.
func NewHistory(query string) *History {
	h := &History{}
	h.messages = append(h.messages, UserMessage{Content: query})
	return h
}

// Append adds a message to the end of the history.
// A ToolResultMessage is only accepted if its call id matches an earlier, unanswered tool call.
func (h *History) Append(m Message) error {
	switch msg := m.(type) {
	case nil:
		return errors.New("cannot append a nil message")
	case AssistantMessage:
		for _, c := range msg.ToolCalls {
			if h.pending == nil {
				h.pending = make(map[string]bool)
			}
			h.pending[c.ID] = true
		}
	case ToolResultMessage:
		if msg.ToolCallID == "" || !h.pending[msg.ToolCallID] {
			return fmt.Errorf("%w: call id '%s'", ErrUncorrelatedToolResult, msg.ToolCallID)
		}
		delete(h.pending, msg.ToolCallID)
	}
	h.messages = append(h.messages, m)
	return nil
}

// Messages returns a copy of the messages in the order they were appended.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages in the history.
func (h *History) Len() int {
	return len(h.messages)
}
