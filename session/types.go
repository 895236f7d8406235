package session

import (
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
)

// CallSession is all per-call state that survives between webhook requests.
//
// It is created explicitly when a call is answered and mutated once per
// committed turn. Expiry is left to the store's TTL policy.
type CallSession struct {
	CallID    string            `json:"call_id"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	State     State             `json:"state"`
	Turns     phonecall.History `json:"turns"`
	Version   int64             `json:"version"` // Monotonically increasing for optimistic locking
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// New returns an empty session for callID in the Greeting state.
func New(callID string) *CallSession {
	return &CallSession{
		CallID: callID,
		State:  StateGreeting,
		Turns:  phonecall.History{},
	}
}

// Clone returns a deep copy of s.
func (s *CallSession) Clone() *CallSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = s.Turns.Clone()
	return &out
}

// Exists reports whether the session has ever been persisted.
func (s *CallSession) Exists() bool {
	return s != nil && s.Version > 0
}

// CapTurns drops the oldest turns so at most max remain. The drop happens
// in caller/assistant pairs when possible so the history keeps alternating.
func (s *CallSession) CapTurns(max int) {
	if max <= 0 || len(s.Turns) <= max {
		return
	}
	drop := len(s.Turns) - max
	if drop%2 == 1 && drop < len(s.Turns) {
		drop++
	}
	s.Turns = s.Turns[drop:].Clone()
}
