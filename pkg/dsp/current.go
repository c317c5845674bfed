package dsp

import "math"

// CurrentSource replaces the measured current channel.
type CurrentSource interface {
	// Fill writes the current samples (A) of raw block seq into dst.
	Fill(dst []float64, seq uint64)
}

// DefaultExcitationAmplitude is the peak code of each excitation tone.
const DefaultExcitationAmplitude = 8

// SimulatedCurrent is the theoretical multi-tone excitation current.
// The table spans one window so it is periodic when every frequency lands
// on a bin.
type SimulatedCurrent struct {
	table     []float64
	blockSize int
}

// NewSimulatedCurrent builds the excitation waveform from cfg.
func NewSimulatedCurrent(cfg Config) *SimulatedCurrent {
	s := &SimulatedCurrent{
		table:     make([]float64, cfg.FFTSize),
		blockSize: cfg.BlockSize,
	}
	for n := range s.table {
		var code float64
		for _, f := range cfg.Frequencies {
			code += DefaultExcitationAmplitude * math.Sin(2*math.Pi*f*float64(n)/cfg.SampleRate)
		}
		s.table[n] = math.Round(code) * cfg.CurrentResolution
	}
	return s
}

// Fill implements CurrentSource.
func (s *SimulatedCurrent) Fill(dst []float64, seq uint64) {
	pos := int((seq * uint64(s.blockSize)) % uint64(len(s.table)))
	for n := range dst {
		dst[n] = s.table[pos]
		if pos++; pos >= len(s.table) {
			pos = 0
		}
	}
}

// At returns the current (A) of the absolute sample index.
func (s *SimulatedCurrent) At(index uint64) float64 {
	return s.table[index%uint64(len(s.table))]
}
