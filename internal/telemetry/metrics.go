// Package telemetry records metrics about tool calls and model completion calls.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ToolCallOutcome is the result category of a tool call.
type ToolCallOutcome string

const (
	ToolCallOutcomeSuccess ToolCallOutcome = "success"
	// ToolCallOutcomeToolError is recorded when the provider executed the tool but reported an error.
	ToolCallOutcomeToolError ToolCallOutcome = "tool_error"
	ToolCallOutcomeError     ToolCallOutcome = "error"
)

// CompletionOutcome is the result category of a chat completion call.
type CompletionOutcome string

const (
	CompletionOutcomeSuccess CompletionOutcome = "success"
	CompletionOutcomeError   CompletionOutcome = "error"
)

// CustomMetrics is the set of application metrics recorded by mcpchat.
type CustomMetrics interface {
	RecordToolCall(ctx context.Context, provider, tool string, outcome ToolCallOutcome, elapsed time.Duration)
	RecordCompletion(ctx context.Context, model string, outcome CompletionOutcome, elapsed time.Duration)
}

type noopCustomMetrics struct{}

// NewNoopCustomMetrics returns a CustomMetrics implementation that records nothing.
func NewNoopCustomMetrics() CustomMetrics {
	return noopCustomMetrics{}
}

func (noopCustomMetrics) RecordToolCall(context.Context, string, string, ToolCallOutcome, time.Duration) {
}

func (noopCustomMetrics) RecordCompletion(context.Context, string, CompletionOutcome, time.Duration) {
}

type otelCustomMetrics struct {
	toolCalls         metric.Int64Counter
	toolCallLatency   metric.Float64Histogram
	completions       metric.Int64Counter
	completionLatency metric.Float64Histogram
}

// NewOtelCustomMetrics creates the mcpchat instruments on the given meter.
func NewOtelCustomMetrics(meter metric.Meter) (CustomMetrics, error) {
	toolCalls, err := meter.Int64Counter(
		"mcpchat_tool_calls_total",
		metric.WithDescription("Number of tool calls dispatched to the tool provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}
	toolCallLatency, err := meter.Float64Histogram(
		"mcpchat_tool_call_duration_seconds",
		metric.WithDescription("Latency of tool calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call latency histogram: %w", err)
	}
	completions, err := meter.Int64Counter(
		"mcpchat_completions_total",
		metric.WithDescription("Number of chat completion calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completions counter: %w", err)
	}
	completionLatency, err := meter.Float64Histogram(
		"mcpchat_completion_duration_seconds",
		metric.WithDescription("Latency of chat completion calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion latency histogram: %w", err)
	}

	return &otelCustomMetrics{
		toolCalls:         toolCalls,
		toolCallLatency:   toolCallLatency,
		completions:       completions,
		completionLatency: completionLatency,
	}, nil
}

func (m *otelCustomMetrics) RecordToolCall(
	ctx context.Context, provider, tool string, outcome ToolCallOutcome, elapsed time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("tool", tool),
		attribute.String("outcome", string(outcome)),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolCallLatency.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *otelCustomMetrics) RecordCompletion(
	ctx context.Context, model string, outcome CompletionOutcome, elapsed time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", string(outcome)),
	)
	m.completions.Add(ctx, 1, attrs)
	m.completionLatency.Record(ctx, elapsed.Seconds(), attrs)
}
