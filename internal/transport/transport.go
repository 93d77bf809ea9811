package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks failures raised by the realtime transport layer.
var ErrTransport = errors.New("transport error")

// TransportError wraps an underlying send or connection failure so callers
// can match on ErrTransport.
func TransportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

// Handler receives turn-completion and lifecycle callbacks from a realtime
// session. Callbacks arrive on the session's read goroutine; implementations
// must not block.
type Handler interface {
	// OnUserTurn is invoked when a complete user utterance has been
	// transcribed.
	OnUserTurn(text string)
	// OnAgentTurn is invoked when the agent finishes a spoken response.
	OnAgentTurn(text string)
	// OnDisconnect is invoked once when the remote side closes the session.
	OnDisconnect()
}

// Session is the narrow contract the lifecycle core holds on the realtime
// speech pipeline. Everything behind it (audio, VAD, synthesis) is the
// vendor's concern.
type Session interface {
	// Start connects the session to the given room and begins delivering
	// callbacks to the handler.
	Start(ctx context.Context, room string, handler Handler) error
	// GenerateReply asks the agent to speak according to the one-off
	// instructions. Returns a TransportError on send failure.
	GenerateReply(ctx context.Context, instructions string) error
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// SessionParams carries the per-call settings a factory needs to open a
// realtime session.
type SessionParams struct {
	Instructions string
	Voice        string
	Temperature  float64
}

// Factory opens a fresh Session per call. A new session per call matters:
// reusing a realtime connection across calls leaks the prior call's state.
type Factory interface {
	NewSession(params SessionParams) Session
}
