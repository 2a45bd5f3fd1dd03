// Package dispatch executes tool calls requested by the model against the tool provider session.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcpjungle/mcpchat/internal/logging"
	"github.com/mcpjungle/mcpchat/internal/model"
	"github.com/mcpjungle/mcpchat/internal/service/registry"
	"github.com/mcpjungle/mcpchat/internal/service/session"
	"github.com/mcpjungle/mcpchat/internal/telemetry"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds a single tool invocation.
const DefaultCallTimeout = 30 * time.Second

var (
	// ErrUnknownTool is returned when the model requests a tool that is not in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrArgumentDecode is returned when the tool call arguments cannot be used.
	ErrArgumentDecode = errors.New("failed to decode tool arguments")
)

// Invoker invokes a tool on a tool provider.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (*session.Outcome, error)
}

// InvocationRecorder persists an audit record of a tool invocation.
type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, inv *model.ToolInvocation) error
}

// Result is the normalized outcome of a dispatched tool call.
type Result struct {
	Tool   string
	CallID string

	// OK is false when the provider executed the tool but reported a failure.
	OK bool

	// Texts holds the text fragments of the tool output in order. Non-text fragments are dropped.
	Texts []string

	Elapsed time.Duration
}

// Config holds the dependencies of a Dispatcher.
type Config struct {
	Registry *registry.Registry
	Invoker  Invoker

	// Recorder is optional. When set, every invocation that reaches the provider is recorded.
	Recorder InvocationRecorder
	Metrics  telemetry.CustomMetrics
	Logger   *zap.Logger

	// Provider labels the tool provider in metrics and audit records.
	Provider string

	CallTimeout time.Duration

	// StrictArguments enables validation of the arguments against the tool's input schema
	// before the tool is invoked.
	StrictArguments bool
}

// Dispatcher validates tool calls, invokes them and normalizes their outcome.
type Dispatcher struct {
	registry    *registry.Registry
	invoker     Invoker
	recorder    InvocationRecorder
	metrics     telemetry.CustomMetrics
	logger      *zap.Logger
	provider    string
	callTimeout time.Duration
	strict      bool
}

// New creates a Dispatcher.
func New(c *Config) (*Dispatcher, error) {
	if c == nil || c.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if c.Invoker == nil {
		return nil, errors.New("tool invoker is required")
	}

	d := &Dispatcher{
		registry:    c.Registry,
		invoker:     c.Invoker,
		recorder:    c.Recorder,
		metrics:     c.Metrics,
		logger:      c.Logger,
		provider:    c.Provider,
		callTimeout: c.CallTimeout,
		strict:      c.StrictArguments,
	}
	if d.metrics == nil {
		d.metrics = telemetry.NewNoopCustomMetrics()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.callTimeout <= 0 {
		d.callTimeout = DefaultCallTimeout
	}
	return d, nil
}

// Dispatch executes a single tool call.
//
// An unknown tool or unusable arguments are rejected before the provider is contacted.
// A failure reported by the tool itself is returned as a Result with OK set to false.
// Transport failures are returned unchanged as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, call types.ToolCall) (Result, error) {
	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return Result{}, fmt.Errorf("%w for tool %s: %v", ErrArgumentDecode, call.Name, err)
	}

	if d.strict {
		if err := validateArguments(tool, args); err != nil {
			return Result{}, fmt.Errorf("%w for tool %s: %v", ErrArgumentDecode, call.Name, err)
		}
	}

	d.logger.Debug("invoking tool",
		logging.RoundField(ctx),
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
	)

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := d.invoker.Invoke(callCtx, call.Name, args)
	elapsed := time.Since(start)

	d.record(ctx, call, args, outcome, err, elapsed)

	if err != nil {
		return Result{}, err
	}

	return Result{
		Tool:    call.Name,
		CallID:  call.ID,
		OK:      !outcome.IsError,
		Texts:   outcome.Texts(),
		Elapsed: elapsed,
	}, nil
}

// decodeArguments decodes the JSON argument string produced by the model.
// An empty string or null means the tool takes no arguments.
func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after the argument object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// validateArguments checks the decoded arguments against the tool's input schema.
func validateArguments(tool types.Tool, args map[string]any) error {
	params := registry.ToSchema(tool).Function.Parameters

	argBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments for validation: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(params), gojsonschema.NewBytesLoader(argBytes))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("arguments failed validation: %s", strings.Join(details, "; "))
}

// record reports an invocation that reached the provider to metrics and the audit log.
// Failures to record are logged and never affect the dispatch result.
func (d *Dispatcher) record(
	ctx context.Context,
	call types.ToolCall,
	args map[string]any,
	outcome *session.Outcome,
	invokeErr error,
	elapsed time.Duration,
) {
	inv := &model.ToolInvocation{
		RoundID:    logging.RoundID(ctx),
		CallID:     call.ID,
		Provider:   d.provider,
		Tool:       call.Name,
		DurationMs: elapsed.Milliseconds(),
	}
	metricOutcome := telemetry.ToolCallOutcomeSuccess

	switch {
	case invokeErr != nil:
		metricOutcome = telemetry.ToolCallOutcomeError
		inv.Outcome = model.InvocationTransportError
		inv.Error = invokeErr.Error()
		d.logger.Warn("failed to invoke tool",
			logging.RoundField(ctx),
			zap.String("tool", call.Name),
			zap.Error(invokeErr),
		)
	case outcome.IsError:
		metricOutcome = telemetry.ToolCallOutcomeToolError
		inv.Outcome = model.InvocationToolError
	default:
		inv.Outcome = model.InvocationSuccess
	}

	d.metrics.RecordToolCall(ctx, d.provider, call.Name, metricOutcome, elapsed)

	if d.recorder == nil {
		return
	}
	if b, err := json.Marshal(args); err == nil {
		inv.Arguments = b
	}
	if outcome != nil {
		if b, err := json.Marshal(outcome.Texts()); err == nil {
			inv.Output = b
		}
	}
	// audit writes outlive the caller's deadline
	if err := d.recorder.RecordInvocation(context.WithoutCancel(ctx), inv); err != nil {
		d.logger.Warn("failed to record tool invocation",
			zap.String("tool", call.Name),
			zap.Error(err),
		)
	}
}
