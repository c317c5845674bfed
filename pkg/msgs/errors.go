package msgs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTimestamp indicates microseconds out of range.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrNilField indicates a nil repeated element.
	ErrNilField = errors.New("nil field")
	// ErrFieldCount indicates the wrong number of repeated elements.
	ErrFieldCount = errors.New("field count mismatch")
	// ErrWireType indicates a field encoded with an unexpected wire type.
	ErrWireType = errors.New("wire type mismatch")
	// ErrUnknownField indicates a field not in the schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrTooLarge indicates the message exceeds its maximum size.
	ErrTooLarge = errors.New("message too large")
	// ErrUnknownKind indicates an unsupported message kind.
	ErrUnknownKind = errors.New("unknown message kind")
)

// SizeError reports an encoded or received size above the maximum.
type SizeError struct {
	Kind Kind
	Size int
	Max  int
}

// Error implements error.
func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: size %d exceeds %d", e.Kind, e.Size, e.Max)
}

// Is matches ErrTooLarge.
func (e *SizeError) Is(target error) bool {
	return target == ErrTooLarge
}

// FieldCountError reports a repeated field with the wrong element count.
type FieldCountError struct {
	Field  string
	Count  int
	Expect int
}

// Error implements error.
func (e *FieldCountError) Error() string {
	return fmt.Sprintf("field %s: %d elements, expect %d", e.Field, e.Count, e.Expect)
}

// Is matches ErrFieldCount.
func (e *FieldCountError) Is(target error) bool {
	return target == ErrFieldCount
}
