package sim

import (
	"math"
	"math/cmplx"

	"github.com/robotalks/eda.go/pkg/dsp"
)

type tone struct {
	omega float64
	mag   float64
	phase float64
}

// RCLoad is a skin model excited by the multi-tone current: a resistance
// in parallel with a capacitance, behind an electrode series resistance.
// Channel 0 is the load voltage, channel 1 the transimpedance amplifier
// output.
type RCLoad struct {
	R, C, Series float64
	// Amplitude is the current of each tone in amperes.
	Amplitude     float64
	SampleRate    float64
	TIAResistance float64

	tones []tone
}

// NewRCLoad creates an RCLoad driven at the frequencies of cfg.
func NewRCLoad(r, c float64, cfg dsp.Config) *RCLoad {
	l := &RCLoad{
		R:             r,
		C:             c,
		Amplitude:     dsp.DefaultExcitationAmplitude * cfg.CurrentResolution,
		SampleRate:    cfg.SampleRate,
		TIAResistance: cfg.TIAResistance,
	}
	l.SetFrequencies(cfg.Frequencies)
	return l
}

// SetFrequencies changes the excitation tones.
func (l *RCLoad) SetFrequencies(freqs []float64) {
	l.tones = make([]tone, len(freqs))
	for n, f := range freqs {
		z := l.Impedance(f)
		l.tones[n] = tone{omega: 2 * math.Pi * f, mag: cmplx.Abs(z), phase: cmplx.Phase(z)}
	}
}

// Impedance returns the load impedance at f Hz.
func (l *RCLoad) Impedance(f float64) complex128 {
	omega := 2 * math.Pi * f
	return complex(l.Series, 0) + complex(l.R, 0)/complex(1, omega*l.R*l.C)
}

// Sample implements Source.
func (l *RCLoad) Sample(n uint64, dst []float64) {
	t := float64(n) / l.SampleRate
	var v, i float64
	for _, tn := range l.tones {
		i += l.Amplitude * math.Sin(tn.omega*t)
		v += l.Amplitude * tn.mag * math.Sin(tn.omega*t+tn.phase)
	}
	if len(dst) > 0 {
		dst[0] = v
	}
	if len(dst) > 1 {
		dst[1] = -i * l.TIAResistance
	}
}
