package turn

// Instruction tells the telephony layer what to do next on a call.
type Instruction struct {
	// PlayURL is synthesized audio to play, if any.
	PlayURL string

	// Say is text for the provider's own voice, used when there is no audio.
	Say string

	// Listen asks for the caller's next utterance, routed back to the
	// controller.
	Listen bool

	// Fallback names the failure class when the turn did not commit, and is
	// empty otherwise.
	Fallback string
}

// Call identifies an inbound call.
type Call struct {
	ID   string
	From string
	To   string
}
