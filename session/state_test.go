package session

import (
	"errors"
	"testing"

	phonecall "github.com/drewburns/ai-phonecall"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateGreeting, StateAwaitingSpeech, true},
		{StateGreeting, StateProcessing, true},
		{StateAwaitingSpeech, StateProcessing, true},
		{StateProcessing, StateResponding, true},
		{StateProcessing, StateAwaitingSpeech, true},
		{StateResponding, StateAwaitingSpeech, true},
		{StateResponding, StateGreeting, true},
		{StateAwaitingSpeech, StateResponding, false},
		{StateResponding, StateProcessing, false},
		{StateGreeting, StateResponding, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestCallSessionTransitionError(t *testing.T) {
	s := New("CA1")
	if err := s.Transition(StateAwaitingSpeech); err != nil {
		t.Fatalf("transition: %v", err)
	}

	err := s.Transition(StateResponding)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransitionError", err)
	}
	if s.State != StateAwaitingSpeech {
		t.Fatalf("state = %s, want unchanged %s", s.State, StateAwaitingSpeech)
	}
}

func TestCallSessionTransitionFromZeroState(t *testing.T) {
	s := &CallSession{CallID: "CA1"}
	if err := s.Transition(StateProcessing); err != nil {
		t.Fatalf("zero state should act as greeting: %v", err)
	}
}

func TestCapTurnsKeepsPairs(t *testing.T) {
	s := New("CA1")
	for i := 0; i < 5; i++ {
		s.Turns = s.Turns.Append(phonecall.RoleCaller, "q")
		s.Turns = s.Turns.Append(phonecall.RoleAssistant, "a")
	}

	s.CapTurns(5)
	if len(s.Turns) != 4 {
		t.Fatalf("len = %d, want 4", len(s.Turns))
	}
	if s.Turns[0].Role != phonecall.RoleCaller {
		t.Fatalf("first role = %s, want caller", s.Turns[0].Role)
	}

	s.CapTurns(0)
	if len(s.Turns) != 4 {
		t.Fatalf("non-positive cap should be ignored, len = %d", len(s.Turns))
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := New("CA1")
	s.Turns = s.Turns.Append(phonecall.RoleCaller, "hello")

	c := s.Clone()
	c.Turns[0].Text = "changed"
	if s.Turns[0].Text != "hello" {
		t.Fatalf("original mutated: %q", s.Turns[0].Text)
	}
}
