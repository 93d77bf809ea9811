// internal/registry/registry.go
package registry

import (
	"errors"
	"sync"

	"github.com/user/voiceline/internal/types"
)

// ErrDuplicateSession is returned by Create when a session with the same ID
// is already active.
var ErrDuplicateSession = errors.New("session already active")

// Registry is the process-wide mapping from session ID to live session
// record. It is the single source of truth for an active call's transcript
// and metadata; a record exists here from creation until finalize removes it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*types.SessionRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[types.SessionID]*types.SessionRecord),
	}
}

// Create registers a new session record. Returns ErrDuplicateSession if a
// record with the same ID is already present; the in-flight session is never
// overwritten.
func (r *Registry) Create(record *types.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[record.SessionID]; exists {
		return ErrDuplicateSession
	}
	r.sessions[record.SessionID] = record
	return nil
}

// Get returns the record for the given session ID, or false if it has been
// finalized or never existed.
func (r *Registry) Get(id types.SessionID) (*types.SessionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.sessions[id]
	return record, ok
}

// Mutate applies fn to the record under the registry lock iff the session
// still exists. A call against a finalized session is a silent no-op so that
// turn callbacks racing finalize never fail. Returns whether fn ran.
func (r *Registry) Mutate(id types.SessionID, fn func(*types.SessionRecord)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(record)
	return true
}

// Remove deletes and returns the record. Idempotent: a second call returns
// (nil, false).
func (r *Registry) Remove(id types.SessionID) (*types.SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return record, true
}

// List returns a snapshot of all active records.
func (r *Registry) List() []*types.SessionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*types.SessionRecord, 0, len(r.sessions))
	for _, record := range r.sessions {
		records = append(records, record)
	}
	return records
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
