package session

import (
	"context"
	"errors"
	"fmt"
)

// Operations reported in a TransportError.
const (
	OpConnect    = "connect"
	OpInitialize = "initialize"
	OpDiscover   = "discover tools"
	OpInvoke     = "invoke tool"
)

var (
	// ErrSessionClosed is returned when a primitive is used after the session was closed.
	ErrSessionClosed = errors.New("tool provider session is closed")

	// ErrMalformedDiscovery is returned when the provider's tool list cannot be used.
	ErrMalformedDiscovery = errors.New("malformed tool discovery payload")
)

// TransportError is a channel-level failure while talking to a tool provider:
// the provider is unreachable, did not respond in time, or sent an unusable payload.
// Tool failures reported by the provider itself are not TransportErrors.
type TransportError struct {
	Op       string
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s on tool provider %s: %v", e.Op, e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout returns true if the failure was caused by a deadline expiring.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
