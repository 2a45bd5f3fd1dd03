package session

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// FragmentKind is the type of one unit of tool output.
type FragmentKind string

const (
	FragmentText     FragmentKind = "text"
	FragmentImage    FragmentKind = "image"
	FragmentAudio    FragmentKind = "audio"
	FragmentResource FragmentKind = "resource"
	FragmentUnknown  FragmentKind = "unknown"
)

// Fragment is one unit of a tool's output.
// Only text fragments carry a value; other kinds are kept as opaque references.
type Fragment struct {
	Kind     FragmentKind
	Text     string
	MIMEType string
}

// Outcome is the result of a single tool invocation.
type Outcome struct {
	// IsError is true when the provider executed the tool but reported a failure.
	IsError   bool
	Fragments []Fragment
}

// Texts returns the non-empty text fragments of the outcome in their original order.
// The returned slice is never nil.
func (o *Outcome) Texts() []string {
	texts := make([]string, 0, len(o.Fragments))
	for _, f := range o.Fragments {
		if f.Kind == FragmentText && f.Text != "" {
			texts = append(texts, f.Text)
		}
	}
	return texts
}

// NewOutcome converts an MCP CallToolResult into an Outcome.
func NewOutcome(res *mcp.CallToolResult) *Outcome {
	if res == nil {
		return &Outcome{}
	}
	o := &Outcome{
		IsError:   res.IsError,
		Fragments: make([]Fragment, 0, len(res.Content)),
	}
	for _, c := range res.Content {
		o.Fragments = append(o.Fragments, convertContent(c))
	}
	return o
}

func convertContent(content mcp.Content) Fragment {
	switch c := content.(type) {
	case mcp.TextContent:
		return Fragment{Kind: FragmentText, Text: c.Text}
	case *mcp.TextContent:
		return Fragment{Kind: FragmentText, Text: c.Text}
	case mcp.ImageContent:
		return Fragment{Kind: FragmentImage, MIMEType: c.MIMEType}
	case *mcp.ImageContent:
		return Fragment{Kind: FragmentImage, MIMEType: c.MIMEType}
	case mcp.AudioContent:
		return Fragment{Kind: FragmentAudio, MIMEType: c.MIMEType}
	case mcp.EmbeddedResource:
		return Fragment{Kind: FragmentResource}
	default:
		return Fragment{Kind: FragmentUnknown}
	}
}
