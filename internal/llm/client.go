// Package llm is a client for OpenAI-compatible chat completion endpoints with function calling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcpjungle/mcpchat/internal/telemetry"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"go.uber.org/zap"
)

// DefaultBaseURL is used when no base url is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// maxErrorBodyBytes bounds how much of a failed response body is kept in a ModelError.
const maxErrorBodyBytes = 4096

// ModelError is returned when a chat completion call fails for any reason:
// the endpoint is unreachable, times out, answers with a non-2xx status or sends an unusable body.
type ModelError struct {
	// StatusCode is the http status returned by the endpoint, 0 if no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString("model request failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Timeout returns true if the call failed because its deadline expired.
func (e *ModelError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Config holds the parameters of a completion client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    telemetry.CustomMetrics
}

// Request is a single chat completion call.
type Request struct {
	// SystemPrompt is sent as the first message but is not part of the conversation history.
	SystemPrompt string
	Messages     []types.Message
	Tools        []types.ToolSchema
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    telemetry.CustomMetrics
}

// NewClient creates a completion client.
func NewClient(c *Config) (*Client, error) {
	if c == nil {
		return nil, errors.New("completion client config is required")
	}
	if c.Model == "" {
		return nil, errors.New("model name is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &Client{
		endpoint:   baseURL + "/chat/completions",
		apiKey:     c.APIKey,
		model:      c.Model,
		httpClient: c.HTTPClient,
		logger:     c.Logger,
		metrics:    c.Metrics,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	if client.metrics == nil {
		client.metrics = telemetry.NewNoopCustomMetrics()
	}
	return client, nil
}

// Model returns the name of the model requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the url requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete sends the conversation and tool schemas to the model and returns its reply.
// Any failure is returned as a *ModelError.
func (c *Client) Complete(ctx context.Context, r *Request) (*types.AssistantMessage, error) {
	start := time.Now()
	reply, err := c.complete(ctx, r)

	outcome := telemetry.CompletionOutcomeSuccess
	if err != nil {
		outcome = telemetry.CompletionOutcomeError
	}
	c.metrics.RecordCompletion(ctx, c.model, outcome, time.Since(start))

	return reply, err
}

func (c *Client) complete(ctx context.Context, r *Request) (*types.AssistantMessage, error) {
	if r == nil {
		return nil, &ModelError{Message: "completion request is required"}
	}

	messages, err := toWireMessages(r.SystemPrompt, r.Messages)
	if err != nil {
		return nil, &ModelError{Message: "failed to build request", Err: err}
	}
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    r.Tools,
	})
	if err != nil {
		return nil, &ModelError{Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ModelError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending completion request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(r.Tools)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ModelError{Message: "failed to reach completion endpoint", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &ModelError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ModelError{StatusCode: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	if len(payload.Choices) == 0 {
		return nil, &ModelError{StatusCode: resp.StatusCode, Message: "response contains no choices"}
	}

	msg := payload.Choices[0].Message
	reply := &types.AssistantMessage{
		Content:          derefStr(msg.Content),
		ReasoningContent: derefStr(msg.ReasoningContent),
	}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}

	c.logger.Debug("received completion",
		zap.String("finish_reason", payload.Choices[0].FinishReason),
		zap.Int("tool_calls", len(reply.ToolCalls)),
	)
	return reply, nil
}

// errorMessage extracts a readable message from an error response body.
func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
