package session

import "fmt"

// State is where a call sits in the turn-taking cycle.
//
// The webhook protocol has no held connection, so the "conversation loop" is
// a series of independent requests. State makes the position in that cycle
// explicit instead of inferring it from whether a key happens to exist.
type State string

const (
	StateGreeting       State = "greeting"
	StateAwaitingSpeech State = "awaiting_speech"
	StateProcessing     State = "processing"
	StateResponding     State = "responding"
)

var transitions = map[State][]State{
	// An utterance for a call whose start we never saw is tolerated.
	StateGreeting:       {StateAwaitingSpeech, StateProcessing},
	StateAwaitingSpeech: {StateProcessing},
	StateProcessing:     {StateResponding, StateAwaitingSpeech},
	StateResponding:     {StateAwaitingSpeech},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed.
// Any state may go back to Greeting: a new call always starts over.
func (s State) CanTransition(next State) bool {
	if next == StateGreeting {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError is returned for a move the state machine does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid call state transition %s -> %s", e.From, e.To)
}

// Transition moves the session to next.
func (s *CallSession) Transition(next State) error {
	from := s.State
	if from == "" {
		from = StateGreeting
	}
	if !from.CanTransition(next) {
		return &TransitionError{From: from, To: next}
	}
	s.State = next
	return nil
}
