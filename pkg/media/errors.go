package media

import "errors"

var (
	// ErrInvalidTransition is returned when a track cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("media: invalid track state transition")

	// ErrUnknownKind is returned for a track kind that does not exist.
	ErrUnknownKind = errors.New("media: unknown track kind")
)
