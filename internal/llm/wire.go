package llm

import (
	"encoding/json"
	"fmt"

	"github.com/mcpjungle/mcpchat/pkg/types"
)

// chatRequest is the body of a POST /chat/completions request.
type chatRequest struct {
	Model    string             `json:"model"`
	Messages []wireMessage      `json:"messages"`
	Tools    []types.ToolSchema `json:"tools,omitempty"`
}

// wireMessage is one message in the OpenAI chat format.
// Content is a pointer so that an assistant message with only tool calls is sent as null.
type wireMessage struct {
	Role       types.Role     `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name string `json:"name"`
	// Arguments is normally a JSON-encoded string, but some compatible servers send the object itself.
	Arguments json.RawMessage `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          *string        `json:"content"`
			ReasoningContent *string        `json:"reasoning_content"`
			ToolCalls        []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// toWireMessages converts the conversation into the wire format, prepending the system prompt.
func toWireMessages(systemPrompt string, messages []types.Message) ([]wireMessage, error) {
	out := make([]wireMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, wireMessage{Role: types.RoleSystem, Content: strPtr(systemPrompt)})
	}

	for i, m := range messages {
		switch msg := m.(type) {
		case types.UserMessage:
			out = append(out, wireMessage{Role: types.RoleUser, Content: strPtr(msg.Content)})
		case types.AssistantMessage:
			// reasoning content is never sent back to the model
			w := wireMessage{Role: types.RoleAssistant}
			if msg.Content != "" {
				w.Content = strPtr(msg.Content)
			}
			for _, c := range msg.ToolCalls {
				w.ToolCalls = append(w.ToolCalls, wireToolCall{
					ID:       c.ID,
					Type:     "function",
					Function: wireFunction{Name: c.Name, Arguments: encodeArguments(c.Arguments)},
				})
			}
			out = append(out, w)
		case types.ToolResultMessage:
			out = append(out, wireMessage{
				Role:       types.RoleTool,
				Content:    strPtr(msg.Content),
				ToolCallID: msg.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("unsupported message type %T at position %d", m, i)
		}
	}
	return out, nil
}

// encodeArguments returns the argument string as a JSON string value.
func encodeArguments(args string) json.RawMessage {
	b, _ := json.Marshal(args)
	return b
}

// decodeArguments returns the JSON argument text of a tool call as a plain string.
func decodeArguments(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func strPtr(s string) *string {
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
