// Package conversation runs the bounded tool-use conversation for a single user query.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcpjungle/mcpchat/internal/llm"
	"github.com/mcpjungle/mcpchat/internal/logging"
	"github.com/mcpjungle/mcpchat/internal/service/dispatch"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"go.uber.org/zap"
)

const (
	// NoResponseMarker is returned when the model reply carries neither text nor reasoning text.
	NoResponseMarker = "(no response)"

	// ToolFailureNotice is appended to the model's text when the requested tool reports a failure.
	ToolFailureNotice = "\nTool call failed"

	// DefaultSystemPrompt is sent with the first completion call of a round.
	DefaultSystemPrompt = "You are a helpful assistant with access to tools. " +
		"You must use these tools to help users accomplish their tasks effectively and efficiently. " +
		"Always provide clear and concise responses."

	// DefaultFollowUpSystemPrompt is sent with the completion call that carries the tool result.
	DefaultFollowUpSystemPrompt = "You are a helpful assistant with access to tools."

	// DefaultCompletionTimeout bounds each completion call.
	DefaultCompletionTimeout = 60 * time.Second
)

// ErrMissingToolCallID is returned when the model requests a tool without a call id,
// since the tool result could not be correlated with the request.
var ErrMissingToolCallID = errors.New("tool call has no id")

// Completer sends a conversation to the model.
type Completer interface {
	Complete(ctx context.Context, r *llm.Request) (*types.AssistantMessage, error)
}

// ToolDispatcher executes a tool call requested by the model.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call types.ToolCall) (dispatch.Result, error)
}

// Observer is notified about tool activity during a round.
type Observer interface {
	ToolRequested(ctx context.Context, call types.ToolCall)
	ToolFinished(ctx context.Context, result dispatch.Result)
}

// Config holds the dependencies of an Engine.
type Config struct {
	Completer  Completer
	Dispatcher ToolDispatcher

	// Tools are the function schemas attached to every completion call.
	Tools []types.ToolSchema

	SystemPrompt         string
	FollowUpSystemPrompt string
	CompletionTimeout    time.Duration

	// TrimUndispatchedCalls drops the tool calls that were not dispatched from the assistant message
	// sent back with the tool result. Endpoints that require every tool call to be answered reject
	// the reply otherwise.
	TrimUndispatchedCalls bool

	Observer Observer
	Logger   *zap.Logger
}

// Engine answers user queries with at most one tool round-trip.
// An Engine holds no per-query state, every call to Ask starts a fresh history.
type Engine struct {
	completer      Completer
	dispatcher     ToolDispatcher
	tools          []types.ToolSchema
	systemPrompt   string
	followUpPrompt string
	timeout        time.Duration
	trimCalls      bool
	observer       Observer
	logger         *zap.Logger
}

// New creates an Engine.
func New(c *Config) (*Engine, error) {
	if c == nil || c.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if c.Dispatcher == nil {
		return nil, errors.New("tool dispatcher is required")
	}

	e := &Engine{
		completer:      c.Completer,
		dispatcher:     c.Dispatcher,
		tools:          c.Tools,
		systemPrompt:   c.SystemPrompt,
		followUpPrompt: c.FollowUpSystemPrompt,
		timeout:        c.CompletionTimeout,
		trimCalls:      c.TrimUndispatchedCalls,
		observer:       c.Observer,
		logger:         c.Logger,
	}
	if e.systemPrompt == "" {
		e.systemPrompt = DefaultSystemPrompt
	}
	if e.followUpPrompt == "" {
		e.followUpPrompt = DefaultFollowUpSystemPrompt
	}
	if e.timeout <= 0 {
		e.timeout = DefaultCompletionTimeout
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// round tracks the state of a single query.
type round struct {
	ctx     context.Context
	history *types.History
	state   State
	logger  *zap.Logger
}

func (r *round) moveTo(next State) {
	if !canTransition(r.state, next) {
		// programming error in the engine, the round continues but the log shows where
		r.logger.Error("invalid conversation state transition",
			logging.RoundField(r.ctx),
			zap.String("from", string(r.state)),
			zap.String("to", string(next)),
		)
	}
	r.logger.Debug("conversation state changed",
		logging.RoundField(r.ctx),
		zap.String("from", string(r.state)),
		zap.String("to", string(next)),
	)
	r.state = next
}

// Ask answers a single user query.
//
// The model is asked once with the registry's tool schemas. If it requests a tool, only the first
// requested call is dispatched and its result is sent back to the model for a final answer.
// Unknown tools, calls without an id, unusable arguments, transport failures and model failures are
// returned as errors and the query's history is discarded.
//
// The assistant message is sent back exactly as received, including calls that were not dispatched.
// Endpoints such as OpenAI's reject a history in which a tool call has no matching tool message, so a
// reply with several calls then fails the second completion call unless TrimUndispatchedCalls is set.
func (e *Engine) Ask(ctx context.Context, query string) (string, error) {
	ctx = logging.WithRoundID(ctx, uuid.NewString())
	r := &round{
		ctx:     ctx,
		history: types.NewHistory(query),
		state:   StateAwaitingUserQuery,
		logger:  e.logger,
	}

	r.moveTo(StateModelRequested)
	first, err := e.complete(ctx, e.systemPrompt, r.history)
	if err != nil {
		r.moveTo(StateFailed)
		return "", err
	}
	firstText := replyText(first)

	if !first.HasToolCalls() {
		r.moveTo(StateNoToolCall)
		r.moveTo(StateAnswered)
		return firstText, nil
	}

	r.moveTo(StateToolRequested)
	call := first.ToolCalls[0]
	if n := len(first.ToolCalls); n > 1 {
		e.logger.Info("model requested several tools, only the first one is called",
			logging.RoundField(ctx),
			zap.String("tool", call.Name),
			zap.Int("ignored", n-1),
		)
	}
	if call.ID == "" {
		r.moveTo(StateFailed)
		return "", fmt.Errorf("%w: %s", ErrMissingToolCallID, call.Name)
	}

	assistant := *first
	if e.trimCalls {
		assistant.ToolCalls = []types.ToolCall{call}
	}
	// appended before dispatch so a result that cannot be correlated never reaches the provider
	if err := r.history.Append(assistant); err != nil {
		r.moveTo(StateFailed)
		return "", err
	}

	if e.observer != nil {
		e.observer.ToolRequested(ctx, call)
	}

	result, err := e.dispatcher.Dispatch(ctx, call)
	if err != nil {
		r.moveTo(StateFailed)
		return "", err
	}
	r.moveTo(StateToolDispatched)
	if e.observer != nil {
		e.observer.ToolFinished(ctx, result)
	}

	if !result.OK {
		r.moveTo(StateAnswered)
		return firstText + ToolFailureNotice, nil
	}

	content, err := encodeToolResult(result.Texts)
	if err != nil {
		r.moveTo(StateFailed)
		return "", err
	}
	if err := r.history.Append(types.ToolResultMessage{ToolCallID: call.ID, Content: content}); err != nil {
		r.moveTo(StateFailed)
		return "", err
	}

	r.moveTo(StateModelRequestedAgain)
	second, err := e.complete(ctx, e.followUpPrompt, r.history)
	if err != nil {
		r.moveTo(StateFailed)
		return "", err
	}

	r.moveTo(StateAnswered)
	return replyText(second), nil
}

// complete sends the history to the model with the given system prompt.
// Failures are always returned as *llm.ModelError.
func (e *Engine) complete(ctx context.Context, systemPrompt string, h *types.History) (*types.AssistantMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.completer.Complete(callCtx, &llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     h.Messages(),
		Tools:        e.tools,
	})
	if err != nil {
		var modelErr *llm.ModelError
		if errors.As(err, &modelErr) {
			return nil, err
		}
		return nil, &llm.ModelError{Message: "completion call failed", Err: err}
	}
	if reply == nil {
		return nil, &llm.ModelError{Message: "completion returned no message"}
	}
	return reply, nil
}

// replyText picks the text to show for a model reply:
// the reply content, then the reasoning content, then NoResponseMarker.
func replyText(m *types.AssistantMessage) string {
	if m.Content != "" {
		return m.Content
	}
	if m.ReasoningContent != "" {
		return m.ReasoningContent
	}
	return NoResponseMarker
}

// encodeToolResult encodes the tool's text fragments as a JSON array.
func encodeToolResult(texts []string) (string, error) {
	if texts == nil {
		texts = []string{}
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(texts); err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
