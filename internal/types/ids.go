// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type AgentID string
type CallID string

// NewSessionID returns a fresh random session identifier. Live sessions take
// their ID from the transport room name; this covers ad-hoc and test sessions
// that have no room yet.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
