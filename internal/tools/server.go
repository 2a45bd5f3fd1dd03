// Package tools implements mcpchat's built-in MCP tool provider.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/mcpjungle/mcpchat/pkg/version"
)

// ServerName is the name the built-in provider reports during initialization.
const ServerName = "mcpchat builtin tools"

// NewServer creates an MCP server exposing the clock and weather tools.
func NewServer(clock *Clock, weather *Weather) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version.GetVersion(), server.WithToolCapabilities(true))
	if clock == nil {
		clock = &Clock{}
	}
	s.AddTool(clock.Tool(), clock.Handle)
	if weather != nil {
		s.AddTool(weather.Tool(), weather.Handle)
	}
	return s
}
