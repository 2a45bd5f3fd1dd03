// Package session manages the long-lived connection to a single MCP tool provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/mcpjungle/mcpchat/pkg/version"
	"go.uber.org/zap"
)

// DefaultInitReqTimeout is how long to wait for the provider to answer the initialize request.
const DefaultInitReqTimeout = 10 * time.Second

// maxDiscoveryPages bounds tools/list pagination in case a provider keeps returning a cursor.
const maxDiscoveryPages = 100

// ConnectFunc creates a started but not yet initialized MCP client.
type ConnectFunc func(ctx context.Context) (*client.Client, error)

// Config holds the parameters for opening a Session.
type Config struct {
	// Target describes how to reach the provider. It is required unless Connect is set.
	Target *types.ProviderTarget

	// Env is passed to a stdio provider's process, in the form "KEY=VALUE".
	Env []string

	// BearerToken and Headers are sent to a streamable http provider.
	BearerToken string
	Headers     map[string]string

	InitReqTimeout time.Duration

	// Connect overrides how the client is created, eg- to talk to an in-process provider.
	Connect ConnectFunc

	Logger *zap.Logger
}

// Session is an open, initialized connection to one tool provider.
// It offers the two primitives the rest of mcpchat needs: tool discovery and tool invocation.
type Session struct {
	provider string
	client   *client.Client
	tools    []types.Tool
	logger   *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open connects to the tool provider, performs the initialize handshake and discovers its tools.
// Both steps must succeed for the session to be usable; on any failure everything opened so far is
// closed again and a *TransportError is returned.
func Open(ctx context.Context, c *Config) (*Session, error) {
	if c == nil || (c.Target == nil && c.Connect == nil) {
		return nil, errors.New("tool provider target is required to open a session")
	}

	s := &Session{
		provider: providerName(c),
		logger:   c.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	timeout := c.InitReqTimeout
	if timeout <= 0 {
		timeout = DefaultInitReqTimeout
	}

	mcpClient, err := s.connect(ctx, c)
	if err != nil {
		return nil, &TransportError{Op: OpConnect, Provider: s.provider, Err: err}
	}
	s.client = mcpClient

	if err := s.initialize(ctx, timeout); err != nil {
		s.closeAfterFailedStartup()
		return nil, err
	}

	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tools, err := s.DiscoverTools(discoverCtx)
	if err != nil {
		s.closeAfterFailedStartup()
		return nil, err
	}
	s.tools = tools

	s.logger.Info("connected to tool provider",
		zap.String("provider", s.provider),
		zap.Int("tools", len(tools)),
	)
	return s, nil
}

func providerName(c *Config) string {
	if c.Target != nil {
		return c.Target.Name()
	}
	return "in-process"
}

func (s *Session) connect(ctx context.Context, c *Config) (*client.Client, error) {
	if c.Connect != nil {
		return c.Connect(ctx)
	}
	switch c.Target.Transport {
	case types.TransportStreamableHTTP:
		return createHTTPClient(c.Target, c.BearerToken, c.Headers, s.logger)
	case types.TransportStdio:
		return runStdioProvider(c.Target, c.Env, s.logger)
	default:
		return nil, fmt.Errorf("unsupported transport '%s'", c.Target.Transport)
	}
}

func (s *Session) initialize(ctx context.Context, timeout time.Duration) error {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "mcpchat",
		Version: version.GetVersion(),
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.client.Initialize(initCtx, initRequest); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("initialization request timed out after %s: %w", timeout, err)
		}
		return &TransportError{Op: OpInitialize, Provider: s.provider, Err: err}
	}
	return nil
}

// closeAfterFailedStartup releases the client after a partial startup. Close errors are only logged
// because the startup error is the one worth reporting.
func (s *Session) closeAfterFailedStartup() {
	if err := s.Close(); err != nil {
		s.logger.Warn("failed to close tool provider after failed startup",
			zap.String("provider", s.provider),
			zap.Error(err),
		)
	}
}

// Provider returns the label of the tool provider this session is connected to.
func (s *Session) Provider() string {
	return s.provider
}

// Tools returns the tools discovered when the session was opened.
func (s *Session) Tools() []types.Tool {
	out := make([]types.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// DiscoverTools queries the provider for the tools it publishes.
func (s *Session) DiscoverTools(ctx context.Context) ([]types.Tool, error) {
	if s.closed.Load() {
		return nil, &TransportError{Op: OpDiscover, Provider: s.provider, Err: ErrSessionClosed}
	}

	var discovered []mcp.Tool
	req := mcp.ListToolsRequest{}
	for page := 0; page < maxDiscoveryPages; page++ {
		resp, err := s.client.ListTools(ctx, req)
		if err != nil {
			return nil, &TransportError{Op: OpDiscover, Provider: s.provider, Err: err}
		}
		if resp == nil {
			return nil, &TransportError{Op: OpDiscover, Provider: s.provider, Err: ErrMalformedDiscovery}
		}
		discovered = append(discovered, resp.Tools...)
		if resp.NextCursor == "" {
			break
		}
		req.Params.Cursor = resp.NextCursor
	}

	tools, err := convertTools(discovered)
	if err != nil {
		return nil, &TransportError{Op: OpDiscover, Provider: s.provider, Err: err}
	}
	return tools, nil
}

// convertTools converts the MCP tool list into tool descriptors.
func convertTools(in []mcp.Tool) ([]types.Tool, error) {
	tools := make([]types.Tool, 0, len(in))
	for i, t := range in {
		if t.GetName() == "" {
			return nil, fmt.Errorf("%w: tool at position %d has no name", ErrMalformedDiscovery, i)
		}
		tools = append(tools, types.Tool{
			Name:        t.GetName(),
			Description: t.Description,
			InputSchema: types.ToolInputSchema{
				Type:       t.InputSchema.Type,
				Properties: t.InputSchema.Properties,
				Required:   t.InputSchema.Required,
			},
		})
	}
	return tools, nil
}

// Invoke calls a tool on the provider and waits for its single response.
// A tool that ran but failed is reported through Outcome.IsError, not through the error return.
func (s *Session) Invoke(ctx context.Context, name string, args map[string]any) (*Outcome, error) {
	if s.closed.Load() {
		return nil, &TransportError{Op: OpInvoke, Provider: s.provider, Err: ErrSessionClosed}
	}
	if args == nil {
		args = map[string]any{}
	}

	callToolReq := mcp.CallToolRequest{}
	callToolReq.Params.Name = name
	callToolReq.Params.Arguments = args

	callToolResp, err := s.client.CallTool(ctx, callToolReq)
	if err != nil {
		return nil, &TransportError{
			Op:       OpInvoke,
			Provider: s.provider,
			Err:      fmt.Errorf("tool %s: %w", name, err),
		}
	}

	// NOTE: if the tool returns a list, each element becomes a separate content item.
	// Any other return type is completely available in Content[0].
	return NewOutcome(callToolResp), nil
}

// Close shuts down the connection and any process the session started.
// It is safe to call Close more than once; only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.client == nil {
			return
		}
		if err := s.client.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close tool provider %s: %w", s.provider, err)
			return
		}
		s.logger.Debug("closed tool provider session", zap.String("provider", s.provider))
	})
	return s.closeErr
}
