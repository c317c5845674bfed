package dsp

import (
	"fmt"
	"math"
)

// DefaultFrequencies are the analysis frequencies (Hz) of the excitation waveform.
var DefaultFrequencies = []float64{
	12, 28, 32, 36, 44, 68, 84, 108, 136, 196, 256, 324, 400, 484, 576, 724,
}

// Defaults of the reference front-end.
const (
	DefaultSampleRate        = 4096
	DefaultBlockSize         = 512
	DefaultFFTSize           = 1024
	DefaultVoltageScale      = 3.0 / 16384.0
	DefaultTIAResistance     = 220000.0
	DefaultCurrentResolution = 37.5e-9
)

// Config defines the impedance extraction parameters.
type Config struct {
	// SampleRate is the ADC sampling rate in Hz.
	SampleRate float64 `mapstructure:"sample_rate"`
	// BlockSize is the number of (voltage, current) pairs in a raw block.
	BlockSize int `mapstructure:"block_size"`
	// FFTSize is the sliding window length W.
	FFTSize int `mapstructure:"fft_size"`
	// Frequencies are the analysis frequencies in Hz, each must land on a bin.
	Frequencies []float64 `mapstructure:"frequencies"`
	// VoltageScale converts voltage ADC codes to volts.
	VoltageScale float64 `mapstructure:"voltage_scale"`
	// TIAResistance is the transimpedance amplifier resistance in ohms.
	TIAResistance float64 `mapstructure:"tia_resistance"`
	// SimulateCurrent replaces measured current by the theoretical waveform.
	SimulateCurrent bool `mapstructure:"simulate_current"`
	// CurrentResolution is the current (A) of one excitation DAC code.
	CurrentResolution float64 `mapstructure:"current_resolution"`
	// FFT selects the transform implementation: "gonum" or "radix2".
	FFT string `mapstructure:"fft"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:        DefaultSampleRate,
		BlockSize:         DefaultBlockSize,
		FFTSize:           DefaultFFTSize,
		Frequencies:       append([]float64(nil), DefaultFrequencies...),
		VoltageScale:      DefaultVoltageScale,
		TIAResistance:     DefaultTIAResistance,
		CurrentResolution: DefaultCurrentResolution,
		FFT:               "gonum",
	}
}

// CurrentScale converts current ADC codes to amperes.
// The current channel is inverted by the transimpedance amplifier.
func (c *Config) CurrentScale() float64 {
	return -c.VoltageScale / c.TIAResistance
}

// BinWidth is the frequency resolution of the window in Hz.
func (c *Config) BinWidth() float64 {
	return c.SampleRate / float64(c.FFTSize)
}

// BlockDuration is the time covered by one raw block in seconds.
func (c *Config) BlockDuration() float64 {
	return float64(c.BlockSize) / c.SampleRate
}

// Bins maps the analysis frequencies to FFT bin indices.
func (c *Config) Bins() ([]int, error) {
	if err := c.validateSizes(); err != nil {
		return nil, err
	}
	if len(c.Frequencies) == 0 {
		return nil, &ConfigError{Field: "frequencies", Reason: "empty"}
	}
	bins := make([]int, len(c.Frequencies))
	for n, f := range c.Frequencies {
		pos := f / c.BinWidth()
		bin := math.Round(pos)
		if math.Abs(pos-bin) > 1e-6 {
			return nil, &ConfigError{Field: "frequencies", Reason: fmt.Sprintf("%g Hz is not on a bin", f)}
		}
		if bin < 0 || int(bin) > c.FFTSize/2 {
			return nil, &ConfigError{Field: "frequencies", Reason: fmt.Sprintf("%g Hz is out of range", f)}
		}
		bins[n] = int(bin)
	}
	return bins, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	_, err := c.Bins()
	return err
}

func (c *Config) validateSizes() error {
	switch {
	case c.SampleRate <= 0:
		return &ConfigError{Field: "sample_rate", Reason: "must be positive"}
	case c.FFTSize < 2:
		return &ConfigError{Field: "fft_size", Reason: "too small"}
	case c.BlockSize <= 0 || c.BlockSize > c.FFTSize:
		return &ConfigError{Field: "block_size", Reason: "must be within (0, fft_size]"}
	case c.VoltageScale == 0 || c.TIAResistance == 0:
		return &ConfigError{Field: "voltage_scale", Reason: "scales must be non-zero"}
	}
	return nil
}
