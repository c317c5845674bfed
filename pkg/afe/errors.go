package afe

import (
	"errors"
	"fmt"
)

var (
	// ErrOverrun indicates the hardware moved to a buffer still in use.
	ErrOverrun = errors.New("sample buffer overrun")
	// ErrNoChannel indicates interconnect channel exhaustion.
	ErrNoChannel = errors.New("no interconnect channel available")
	// ErrNotStarted indicates the acquisition is not running.
	ErrNotStarted = errors.New("not started")
	// ErrAlreadyStarted indicates a second start.
	ErrAlreadyStarted = errors.New("already started")
	// ErrInvalidRate indicates an unsupported sampling rate.
	ErrInvalidRate = errors.New("invalid sample rate")
)

// InitError reports a failure while wiring peripherals.
// It is unrecoverable.
type InitError struct {
	Stage string
	Err   error
}

// Error implements error.
func (e *InitError) Error() string {
	return fmt.Sprintf("afe init %s: %v", e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *InitError) Unwrap() error {
	return e.Err
}

func initErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &InitError{Stage: stage, Err: err}
}
