// Package phonecall holds the conversation types shared by the call session
// store, the model adapters and the turn controller.
package phonecall

// Role tags who spoke a turn.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a call.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is the ordered list of turns for one call. Order is significant:
// it is replayed as-is to the language model.
type History []Turn

// Append returns a copy of h with a new turn at the end. The receiver's
// backing array is never written to, so a failed turn cannot leak into the
// caller's view of the history.
func (h History) Append(role Role, text string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Turn{Role: role, Text: text})
}

// Clone returns an independent copy of h.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Last returns the most recent turn and whether one exists.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// TruncateHistory trims history to the most recent turns that fit both
// limits. The turn limit is applied first, then the token limit, removing
// the oldest turns. Non-positive limits are ignored.
func TruncateHistory(history History, tokenLimit, turnLimit int) History {
	if len(history) == 0 {
		return history
	}

	if turnLimit > 0 && len(history) > turnLimit {
		history = history[len(history)-turnLimit:]
	}

	if tokenLimit <= 0 {
		return history
	}

	total := HistoryTokens(history)
	// Always keep the newest turn so the model sees what the caller just said.
	for total > tokenLimit && len(history) > 1 {
		total -= EstimateTokens(history[0].Text)
		history = history[1:]
	}

	return history
}
