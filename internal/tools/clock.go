package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	CurrentTimeToolName = "get_current_time"

	// TimeLayout is the format of the time returned by the clock tool.
	TimeLayout = "2006-01-02 15:04:05"
)

// Clock serves the current local time.
type Clock struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (c *Clock) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Tool describes the clock tool.
func (c *Clock) Tool() mcp.Tool {
	return mcp.NewTool(CurrentTimeToolName,
		mcp.WithDescription("Get the current local time.\nOutput format: year-month-day hour:minute:second"),
	)
}

// Handle returns the current time formatted with TimeLayout.
func (c *Clock) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(c.now().Format(TimeLayout)), nil
}
