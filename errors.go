package phonecall

import "errors"

// Turn failure classes. Adapters wrap their errors with one of these so the
// turn controller can pick a fallback without knowing the vendor.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrCompletion    = errors.New("completion failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrStore         = errors.New("context store failed")
)

// Kind returns a short label for the failure class of err, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTranscription):
		return "transcription"
	case errors.Is(err, ErrCompletion):
		return "completion"
	case errors.Is(err, ErrSynthesis):
		return "synthesis"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "unknown"
	}
}

// temporaryError marks a failure worth retrying (timeouts, 429s, 5xx).
type temporaryError struct{ err error }

func (e *temporaryError) Error() string { return e.err.Error() }
func (e *temporaryError) Unwrap() error { return e.err }

// Temporary marks err as transient. A nil err stays nil.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &temporaryError{err: err}
}

// IsTemporary reports whether err, or anything it wraps, was marked transient.
func IsTemporary(err error) bool {
	var t *temporaryError
	return errors.As(err, &t)
}
