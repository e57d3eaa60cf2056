// ABOUTME: Receiver status snapshot
// ABOUTME: Lock-protected whole-struct replacement so readers never see torn state
package receiver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/screamrx/screamrx/pkg/scream"
)

// State is the receive loop state
type State int

const (
	StateIdle State = iota
	StateJoiningGroup
	StateReceiving
	StateLeavingGroup
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoiningGroup:
		return "joining"
	case StateReceiving:
		return "receiving"
	case StateLeavingGroup:
		return "leaving"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Status is the snapshot read by the application shell
type Status struct {
	Running          bool             `json:"running"`
	State            State            `json:"state"`
	SessionID        string           `json:"session_id,omitempty"`
	Profile          string           `json:"profile,omitempty"`
	Format           *scream.Format   `json:"format,omitempty"`
	LastError        scream.ErrorKind `json:"last_error"`
	LastErrorMessage string           `json:"last_error_message,omitempty"`
	Since            time.Time        `json:"since"`
}

// StatusStore publishes Status snapshots
type StatusStore struct {
	mu  sync.RWMutex
	cur Status
}

// NewStatusStore creates an idle store
func NewStatusStore() *StatusStore {
	return &StatusStore{cur: Status{State: StateIdle, Since: time.Now()}}
}

// Snapshot returns a copy of the current status
func (s *StatusStore) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Update applies fn to a copy of the status and publishes the result
func (s *StatusStore) Update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.clone()
	prevState := next.State
	fn(&next)
	if next.State != prevState {
		next.Since = time.Now()
	}
	s.cur = next
}

// Reset replaces the whole status
func (s *StatusStore) Reset(st Status) {
	if st.Since.IsZero() {
		st.Since = time.Now()
	}
	st = st.clone()

	s.mu.Lock()
	s.cur = st
	s.mu.Unlock()
}

func (st Status) clone() Status {
	if st.Format != nil {
		f := *st.Format
		st.Format = &f
	}
	return st
}
