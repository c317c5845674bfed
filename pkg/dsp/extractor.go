package dsp

import (
	"math"

	"github.com/golang/glog"
)

// Extractor computes impedance over a sliding window of raw samples.
// It is not safe for concurrent use.
type Extractor struct {
	cfg     Config
	bins    []int
	fft     RealFFT
	current CurrentSource

	vScale, iScale float64

	vWindow, iWindow []float64
	vWork, iWork     []float64
	vSpec, iSpec     []complex128
	result           []complex64
	seq              uint64
}

// NewExtractor creates an Extractor.
// fft may be nil, then the implementation named by cfg.FFT is used.
func NewExtractor(cfg Config, fft RealFFT) (*Extractor, error) {
	bins, err := cfg.Bins()
	if err != nil {
		return nil, err
	}
	if fft == nil {
		if fft, err = NewFFT(cfg.FFT, cfg.FFTSize); err != nil {
			return nil, err
		}
	}
	if fft.Len() != cfg.FFTSize {
		return nil, &ConfigError{Field: "fft", Reason: "length mismatch"}
	}
	e := &Extractor{
		cfg:     cfg,
		bins:    bins,
		fft:     fft,
		vScale:  cfg.VoltageScale,
		iScale:  cfg.CurrentScale(),
		vWindow: make([]float64, cfg.FFTSize),
		iWindow: make([]float64, cfg.FFTSize),
		vWork:   make([]float64, cfg.FFTSize),
		iWork:   make([]float64, cfg.FFTSize),
		vSpec:   make([]complex128, cfg.FFTSize/2+1),
		iSpec:   make([]complex128, cfg.FFTSize/2+1),
		result:  make([]complex64, len(bins)),
	}
	if cfg.SimulateCurrent {
		e.current = NewSimulatedCurrent(cfg)
	}
	return e, nil
}

// WithCurrentSource replaces the measured current with src.
// A nil src restores the measured current.
func (e *Extractor) WithCurrentSource(src CurrentSource) *Extractor {
	e.current = src
	return e
}

// Config returns the configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Bins returns the FFT bin of each configured frequency.
func (e *Extractor) Bins() []int {
	return append([]int(nil), e.bins...)
}

// Blocks returns the number of blocks pushed.
func (e *Extractor) Blocks() uint64 {
	return e.seq
}

// Reset clears the windows.
func (e *Extractor) Reset() {
	for n := range e.vWindow {
		e.vWindow[n], e.iWindow[n] = 0, 0
	}
	e.seq = 0
}

// Window returns copies of the voltage (V) and current (A) windows.
func (e *Extractor) Window() (voltage, current []float64) {
	return append([]float64(nil), e.vWindow...), append([]float64(nil), e.iWindow...)
}

// Push slides the windows by one block of interleaved
// (voltage, current) codes.
func (e *Extractor) Push(block []int16) error {
	size := e.cfg.BlockSize
	if len(block) != 2*size {
		return ErrBlockSize
	}
	keep := len(e.vWindow) - size
	copy(e.vWindow, e.vWindow[size:])
	copy(e.iWindow, e.iWindow[size:])
	vTail, iTail := e.vWindow[keep:], e.iWindow[keep:]
	for n := 0; n < size; n++ {
		vTail[n] = float64(block[2*n]) * e.vScale
		iTail[n] = float64(block[2*n+1]) * e.iScale
	}
	if e.current != nil {
		e.current.Fill(iTail, e.seq)
	}
	e.seq++
	return nil
}

// Extract pushes block and computes the impedance at every configured
// frequency into out. out is left untouched on failure.
func (e *Extractor) Extract(block []int16, out []complex64) error {
	if len(out) < len(e.bins) {
		return ErrOutputSize
	}
	if err := e.Push(block); err != nil {
		return err
	}
	return e.compute(out)
}

func (e *Extractor) compute(out []complex64) error {
	copy(e.vWork, e.vWindow)
	copy(e.iWork, e.iWindow)
	e.vSpec = e.fft.Forward(e.vSpec, e.vWork)
	e.iSpec = e.fft.Forward(e.iSpec, e.iWork)

	nyquist := e.cfg.FFTSize / 2
	var bad *NonFiniteError
	for n, bin := range e.bins {
		v, i := e.vSpec[bin], e.iSpec[bin]
		if bin == 0 || bin == nyquist {
			v, i = complex(real(v), 0), complex(real(i), 0)
		}
		var z complex64
		if i != 0 {
			z = complex64(v / i)
		}
		if i == 0 || !finite(real(z)) || !finite(imag(z)) {
			if bad == nil {
				bad = &NonFiniteError{}
			}
			bad.Indexes = append(bad.Indexes, n)
			bad.Bins = append(bad.Bins, bin)
			continue
		}
		e.result[n] = z
	}
	if bad != nil {
		glog.Warningf("dsp: block %d dropped: %v", e.seq-1, bad)
		return bad
	}
	copy(out, e.result)
	if glog.V(4) {
		glog.Infof("dsp: block %d: %v", e.seq-1, out[:len(e.bins)])
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
