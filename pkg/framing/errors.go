package framing

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooShort indicates the buffer can't hold the two delimiter positions.
	ErrFrameTooShort = errors.New("frame too short")
	// ErrFrameTooLong indicates the frame exceeds the maximum accepted length.
	ErrFrameTooLong = errors.New("frame too long")
	// ErrPayloadTooLong indicates the payload can't be escaped in place.
	ErrPayloadTooLong = errors.New("payload too long")
	// ErrBadEscape indicates a malformed escape sequence.
	ErrBadEscape = errors.New("bad escape sequence")
)

// EscapeError reports where the escape sequence is broken.
type EscapeError struct {
	Offset int
	Reason string
}

// Error implements error.
func (e *EscapeError) Error() string {
	return fmt.Sprintf("bad escape sequence at %d: %s", e.Offset, e.Reason)
}

// Is matches ErrBadEscape.
func (e *EscapeError) Is(target error) bool {
	return target == ErrBadEscape
}
