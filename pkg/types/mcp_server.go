package types

import (
	"fmt"
	"net/url"
	"strings"
)

// McpServerTransport represents the transport protocol used to reach a tool provider.
type McpServerTransport string

const (
	TransportStdio          McpServerTransport = "stdio"
	TransportStreamableHTTP McpServerTransport = "streamable_http"
)

// BuiltinProviderTarget is the launch target that runs mcpchat's own tool provider as a subprocess.
const BuiltinProviderTarget = "builtin"

// ProviderTarget describes how to reach one MCP tool provider.
type ProviderTarget struct {
	// Raw is the launch target exactly as the user supplied it
	Raw       string             `json:"raw"`
	Transport McpServerTransport `json:"transport"`

	// Command and Args are set when the transport is stdio
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// URL is set when the transport is streamable_http
	URL string `json:"url,omitempty"`
}

// Name returns a short label for the provider, used in logs.
func (p *ProviderTarget) Name() string {
	if p.Transport == TransportStreamableHTTP {
		return p.URL
	}
	return p.Raw
}

// ResolveProviderTarget turns a launch target supplied on the command line into a ProviderTarget.
//   - http:// and https:// URLs use the streamable http transport
//   - scripts ending in .py are run with python, scripts ending in .js are run with node
//   - "builtin" runs selfExe with the "tools serve" sub-command
//   - anything else is treated as an executable and run directly
func ResolveProviderTarget(target, selfExe string) (*ProviderTarget, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("tool provider launch target is required")
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid tool provider url '%s'", target)
		}
		return &ProviderTarget{Raw: target, Transport: TransportStreamableHTTP, URL: target}, nil
	}

	p := &ProviderTarget{Raw: target, Transport: TransportStdio}
	switch {
	case target == BuiltinProviderTarget:
		if selfExe == "" {
			return nil, fmt.Errorf("cannot run the builtin tool provider: path to the mcpchat executable is unknown")
		}
		p.Command = selfExe
		p.Args = []string{"tools", "serve"}
	case strings.HasSuffix(target, ".py"):
		p.Command = "python"
		p.Args = []string{target}
	case strings.HasSuffix(target, ".js"):
		p.Command = "node"
		p.Args = []string{target}
	default:
		p.Command = target
	}
	return p, nil
}
