package experiment

import "errors"

var (
	// ErrMalformedMessage marks client payloads the engine cannot interpret.
	// Transports should treat it as fatal for the connection.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrOutOfSequence marks well-formed messages that do not fit the
	// sender's phase, role or trial stage. No state is changed.
	ErrOutOfSequence = errors.New("message out of sequence")

	ErrNotFound             = errors.New("participant not found")
	ErrDuplicateParticipant = errors.New("participant already registered")

	// ErrPhaseSequence is raised by panic. It marks a programming error in
	// phase progression, never a client mistake.
	ErrPhaseSequence = errors.New("phase sequence violated")
)
