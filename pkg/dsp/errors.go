package dsp

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockSize indicates a raw block of unexpected length.
	ErrBlockSize = errors.New("invalid block size")
	// ErrOutputSize indicates the output can't hold every frequency.
	ErrOutputSize = errors.New("output too small")
	// ErrNonFinite indicates a non-finite impedance value.
	ErrNonFinite = errors.New("non-finite impedance")
	// ErrInvalidConfig indicates a bad configuration.
	ErrInvalidConfig = errors.New("invalid config")
)

// NonFiniteError lists the frequencies with non-finite impedance.
type NonFiniteError struct {
	// Indexes are positions in the frequency list.
	Indexes []int
	// Bins are the corresponding FFT bins.
	Bins []int
}

// Error implements error.
func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("non-finite impedance at bins %v", e.Bins)
}

// Is matches ErrNonFinite.
func (e *NonFiniteError) Is(target error) bool {
	return target == ErrNonFinite
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("dsp config %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
