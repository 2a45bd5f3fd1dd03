package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider() *server.MCPServer {
	s := server.NewMCPServer("test provider", "0.0.1", server.WithToolCapabilities(true))

	s.AddTool(
		mcp.NewTool("get_current_time", mcp.WithDescription("Get the current time")),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("2025-05-12 10:00:00"), nil
		},
	)
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo the text back"),
			mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := request.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	)
	s.AddTool(
		mcp.NewTool("snapshot", mcp.WithDescription("Return a chart")),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultImage("weekly chart", "aGVsbG8=", "image/png"), nil
		},
	)
	s.AddTool(
		mcp.NewTool("always_fails", mcp.WithDescription("Report a tool failure")),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("upstream unavailable"), nil
		},
	)
	s.AddTool(
		mcp.NewTool("broken", mcp.WithDescription("Handler returns an error")),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("handler crashed")
		},
	)
	return s
}

func inProcessConnect(s *server.MCPServer) ConnectFunc {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewInProcessClient(s)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func openTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), &Config{
		Connect:        inProcessConnect(newTestProvider()),
		InitReqTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDiscoversTools(t *testing.T) {
	s := openTestSession(t)

	tools := s.Tools()
	require.Len(t, tools, 5)

	byName := make(map[string]types.Tool)
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	echo, ok := byName["echo"]
	require.True(t, ok, "echo tool should be discovered")
	assert.Equal(t, "Echo the text back", echo.Description)
	assert.Equal(t, "object", echo.InputSchema.Type)
	assert.Contains(t, echo.InputSchema.Properties, "text")
	assert.Equal(t, []string{"text"}, echo.InputSchema.Required)

	clock, ok := byName["get_current_time"]
	require.True(t, ok, "get_current_time tool should be discovered")
	assert.Empty(t, clock.InputSchema.Required)
}

func TestInvoke(t *testing.T) {
	s := openTestSession(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		tool        string
		args        map[string]any
		wantIsError bool
		wantTexts   []string
		wantKinds   []FragmentKind
	}{
		{
			name:      "text result",
			tool:      "get_current_time",
			wantTexts: []string{"2025-05-12 10:00:00"},
			wantKinds: []FragmentKind{FragmentText},
		},
		{
			name:      "arguments are forwarded",
			tool:      "echo",
			args:      map[string]any{"text": "hello"},
			wantTexts: []string{"hello"},
			wantKinds: []FragmentKind{FragmentText},
		},
		{
			name:      "non-text fragments are kept but not exposed as text",
			tool:      "snapshot",
			wantTexts: []string{"weekly chart"},
			wantKinds: []FragmentKind{FragmentText, FragmentImage},
		},
		{
			name:        "tool reported failure",
			tool:        "always_fails",
			wantIsError: true,
			wantTexts:   []string{"upstream unavailable"},
			wantKinds:   []FragmentKind{FragmentText},
		},
		{
			name:        "missing required argument",
			tool:        "echo",
			wantIsError: true,
			wantKinds:   []FragmentKind{FragmentText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Invoke(ctx, tt.tool, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIsError, out.IsError)

			kinds := make([]FragmentKind, 0, len(out.Fragments))
			for _, f := range out.Fragments {
				kinds = append(kinds, f.Kind)
			}
			assert.Equal(t, tt.wantKinds, kinds)
			if tt.wantTexts != nil {
				assert.Equal(t, tt.wantTexts, out.Texts())
			}
		})
	}
}

func TestInvokeHandlerErrorIsTransportError(t *testing.T) {
	s := openTestSession(t)

	_, err := s.Invoke(context.Background(), "broken", nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpInvoke, te.Op)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openTestSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Invoke(context.Background(), "get_current_time", nil)
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.DiscoverTools(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseWithoutClient(t *testing.T) {
	s := &Session{}
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestOpenConnectFailure(t *testing.T) {
	connectErr := errors.New("no such file or directory")
	_, err := Open(context.Background(), &Config{
		Connect: func(ctx context.Context) (*client.Client, error) {
			return nil, connectErr
		},
	})
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpConnect, te.Op)
	assert.ErrorIs(t, err, connectErr)
}

func TestOpenRequiresTarget(t *testing.T) {
	_, err := Open(context.Background(), &Config{})
	assert.Error(t, err)

	_, err = Open(context.Background(), nil)
	assert.Error(t, err)
}

func TestConvertToolsRejectsUnnamedTool(t *testing.T) {
	_, err := convertTools([]mcp.Tool{
		{Name: "ok"},
		{Description: "no name"},
	})
	require.ErrorIs(t, err, ErrMalformedDiscovery)
}

func TestOutcomeTextsSkipsEmptyText(t *testing.T) {
	o := NewOutcome(&mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: ""},
			mcp.ImageContent{Type: "image", Data: "aGVsbG8=", MIMEType: "image/png"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	})
	assert.Equal(t, []string{"first", "second"}, o.Texts())
	assert.Len(t, o.Fragments, 4)
}

func TestOutcomeTextsNeverNil(t *testing.T) {
	o := NewOutcome(nil)
	assert.NotNil(t, o.Texts())
	assert.Empty(t, o.Texts())
}

func TestTransportErrorTimeout(t *testing.T) {
	err := &TransportError{Op: OpInvoke, Provider: "p", Err: context.DeadlineExceeded}
	assert.True(t, err.Timeout())

	err = &TransportError{Op: OpInvoke, Provider: "p", Err: errors.New("boom")}
	assert.False(t, err.Timeout())
}

func TestPrepareHTTPClientOptions(t *testing.T) {
	target := &types.ProviderTarget{Transport: types.TransportStreamableHTTP, URL: "http://localhost:8080/mcp"}

	tests := []struct {
		name     string
		token    string
		headers  map[string]string
		wantOpts int
	}{
		{name: "nothing configured", wantOpts: 0},
		{name: "bearer token", token: "secret", wantOpts: 1},
		{name: "custom headers", headers: map[string]string{"X-Api-Key": "k"}, wantOpts: 1},
		{
			name:     "custom authorization wins",
			token:    "secret",
			headers:  map[string]string{"Authorization": "Basic abc"},
			wantOpts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := prepareHTTPClientOptions(target, tt.token, tt.headers, zap.NewNop())
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}
