package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/mcpjungle/mcpchat/internal/config"
	"github.com/mcpjungle/mcpchat/internal/model"
	"github.com/mcpjungle/mcpchat/internal/service/dispatch"
	"github.com/mcpjungle/mcpchat/pkg/testhelpers"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	queries []string
	replies map[string]string
	errs    map[string]error
}

func (a *fakeAsker) Ask(_ context.Context, query string) (string, error) {
	a.queries = append(a.queries, query)
	if err, ok := a.errs[query]; ok {
		return "", err
	}
	return a.replies[query], nil
}

func TestChatCommandStructure(t *testing.T) {
	testhelpers.AssertEqual(t, "chat <target>", chatCmd.Use)
	testhelpers.AssertNotNil(t, chatCmd.RunE)
	testhelpers.AssertNoError(t, chatCmd.Args(chatCmd, []string{"server.py"}))
	testhelpers.AssertError(t, chatCmd.Args(chatCmd, []string{}))
	testhelpers.AssertError(t, chatCmd.Args(chatCmd, []string{"server.py", "other.py"}))
}

func TestRunChatLoop(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		replies     map[string]string
		errs        map[string]error
		wantQueries []string
		wantOut     []string
		notWantOut  []string
	}{
		{
			name:        "answers until quit",
			input:       "What is 2+2?\nquit\nWhat time is it?\n",
			replies:     map[string]string{"What is 2+2?": "4"},
			wantQueries: []string{"What is 2+2?"},
			wantOut:     []string{": 4\n"},
		},
		{
			name:        "quit is case insensitive and trimmed",
			input:       "  QuIt  \nWhat is 2+2?\n",
			wantQueries: nil,
		},
		{
			name:        "empty lines are skipped",
			input:       "\n   \nhello\n",
			replies:     map[string]string{"hello": "hi"},
			wantQueries: []string{"hello"},
			wantOut:     []string{"hi\n"},
		},
		{
			name:  "error is reported and loop continues",
			input: "first\nsecond\n",
			replies: map[string]string{
				"second": "answer to second",
			},
			errs: map[string]error{
				"first": errors.New("model request failed with status 500"),
			},
			wantQueries: []string{"first", "second"},
			wantOut:     []string{"- error: model request failed with status 500", "answer to second"},
		},
		{
			name:        "query is trimmed",
			input:       "  What time is it?  \n",
			replies:     map[string]string{"What time is it?": "It is 10:00."},
			wantQueries: []string{"What time is it?"},
			wantOut:     []string{"It is 10:00."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{replies: tt.replies, errs: tt.errs}
			var out bytes.Buffer

			err := runChatLoop(context.Background(), strings.NewReader(tt.input), &out, asker)
			require.NoError(t, err)

			assert.Equal(t, tt.wantQueries, asker.queries)
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
			assert.True(t, strings.HasPrefix(out.String(), chatPrompt))
		})
	}
}

func TestRunChatLoopStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- runChatLoop(ctx, pr, io.Discard, &fakeAsker{})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chat loop did not stop after the context was cancelled")
	}
}

func TestRunChatLoopReadError(t *testing.T) {
	err := runChatLoop(context.Background(), iotest.ErrReader(errors.New("input closed")), io.Discard, &fakeAsker{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read query")
	assert.Contains(t, err.Error(), "input closed")
}

func TestChatObserver(t *testing.T) {
	var out bytes.Buffer
	o := &chatObserver{out: &out}

	o.ToolRequested(context.Background(), types.ToolCall{
		ID:        "call_1",
		Name:      "get_area_weather",
		Arguments: `{"area_name":"Hangzhou"}`,
	})
	assert.Contains(t, out.String(), "[calling tool get_area_weather]")
	assert.Contains(t, out.String(), "Hangzhou")

	out.Reset()
	o.ToolRequested(context.Background(), types.ToolCall{ID: "call_2", Name: "echo", Arguments: "{not json"})
	assert.Contains(t, out.String(), "{not json")

	out.Reset()
	o.ToolRequested(context.Background(), types.ToolCall{ID: "call_3", Name: "get_current_time"})
	assert.Equal(t, "[calling tool get_current_time]\n", out.String())

	out.Reset()
	o.ToolFinished(context.Background(), dispatch.Result{Tool: "get_current_time", OK: true, Elapsed: 12 * time.Millisecond})
	assert.Equal(t, "[tool get_current_time ok in 12ms]\n", out.String())

	out.Reset()
	o.ToolFinished(context.Background(), dispatch.Result{Tool: "always_fails", OK: false})
	assert.Contains(t, out.String(), "always_fails failed")
}

func TestResolveTarget(t *testing.T) {
	target, err := resolveTarget("https://tools.example.com/mcp")
	require.NoError(t, err)
	assert.Equal(t, types.TransportStreamableHTTP, target.Transport)

	target, err = resolveTarget("server.py")
	require.NoError(t, err)
	assert.Equal(t, "python", target.Command)

	_, err = resolveTarget("")
	assert.Error(t, err)
}

func TestPrintToolUsage(t *testing.T) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	printToolUsage(c, types.Tool{
		Name:        "get_area_weather",
		Description: "Get today's weather forecast for an area.",
		InputSchema: types.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"area_name": map[string]any{"type": "string"},
				"units":     map[string]any{"type": "string"},
			},
			Required: []string{"area_name"},
		},
	})

	s := out.String()
	assert.Contains(t, s, "get_area_weather\n")
	assert.Contains(t, s, "Input Parameters:")
	assert.Contains(t, s, "area_name (required)")
	assert.Contains(t, s, "units (optional)")
	assert.Less(t, strings.Index(s, "area_name (required)"), strings.Index(s, "units (optional)"))

	out.Reset()
	printToolUsage(c, types.Tool{Name: "get_current_time"})
	assert.Contains(t, out.String(), "This tool does not require any input parameters.")
}

func TestOpenAuditLog(t *testing.T) {
	disabled, err := openAuditLog(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, disabled)

	dsn := filepath.Join(t.TempDir(), "audit.db")
	auditService, err := openAuditLog(&config.Config{AuditDB: dsn})
	require.NoError(t, err)
	require.NotNil(t, auditService)

	require.NoError(t, auditService.RecordInvocation(context.Background(), &model.ToolInvocation{
		Tool:    "get_current_time",
		Outcome: model.InvocationSuccess,
	}))
	require.NoError(t, auditService.Close())

	// the file outlives the connection and can be reopened by 'audit list'
	reopened, err := openAuditLog(&config.Config{AuditDB: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	records, err := reopened.ListInvocations("", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
