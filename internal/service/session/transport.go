package session

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"go.uber.org/zap"
)

// prepareHTTPClientOptions builds the http headers sent to a streamable http provider.
// A custom Authorization header takes precedence over the bearer token.
func prepareHTTPClientOptions(
	target *types.ProviderTarget,
	bearerToken string,
	headers map[string]string,
	logger *zap.Logger,
) []transport.StreamableHTTPCOption {
	var opts []transport.StreamableHTTPCOption

	h := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		h[key] = value
	}

	if bearerToken != "" {
		if _, hasAuthorizationHeader := h["Authorization"]; hasAuthorizationHeader {
			logger.Info("custom Authorization header will be used; bearer token ignored",
				zap.String("provider", target.Name()),
			)
		} else {
			h["Authorization"] = "Bearer " + bearerToken
		}
	}

	if len(h) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(h))
	}
	return opts
}

// createHTTPClient creates a client for a streamable http tool provider.
func createHTTPClient(
	target *types.ProviderTarget,
	bearerToken string,
	headers map[string]string,
	logger *zap.Logger,
) (*client.Client, error) {
	opts := prepareHTTPClientOptions(target, bearerToken, headers, logger)
	c, err := client.NewStreamableHttpClient(target.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable http client: %w", err)
	}
	return c, nil
}

// runStdioProvider starts the provider process and returns a client talking to its stdin/stdout.
func runStdioProvider(target *types.ProviderTarget, env []string, logger *zap.Logger) (*client.Client, error) {
	// the provider inherits mcpchat's environment, extended with any configured variables
	envVars := append(os.Environ(), env...)

	c, err := client.NewStdioMCPClient(target.Command, envVars, target.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start tool provider process '%s': %w", target.Command, err)
	}

	captureStderr(target.Name(), c, logger)
	return c, nil
}

// captureStderr forwards the stderr output of a stdio provider to the logs in the background.
// Provider diagnostics are never mixed into the chat output.
func captureStderr(name string, c *client.Client, logger *zap.Logger) {
	stdioTransport, ok := c.GetTransport().(*transport.Stdio)
	if !ok {
		return
	}
	stderr := stdioTransport.Stderr()
	if stderr == nil {
		return
	}
	logger = logger.With(zap.String("provider", name))

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				logger.Info("provider stderr", zap.String("output", string(buf[:n])))
			}
			if err != nil {
				if err == io.EOF || errors.Is(err, os.ErrClosed) {
					logger.Debug("provider process has exited")
				} else {
					logger.Warn("failed to read provider stderr", zap.Error(err))
				}
				return
			}
		}
	}()
}
