package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// RealFFT computes the forward transform of a real sequence.
type RealFFT interface {
	// Len is the transform length.
	Len() int
	// Forward transforms src of Len() samples into Len()/2+1 bins.
	// dst is reused when it has the right length.
	Forward(dst []complex128, src []float64) []complex128
}

// NewFFT creates a RealFFT by name.
func NewFFT(name string, n int) (RealFFT, error) {
	switch name {
	case "", "gonum":
		return NewGonumFFT(n), nil
	case "radix2":
		return NewRadix2FFT(n)
	}
	return nil, &ConfigError{Field: "fft", Reason: "unknown implementation " + name}
}

// GonumFFT is a RealFFT backed by gonum.
type GonumFFT struct {
	fft *fourier.FFT
}

// NewGonumFFT creates a GonumFFT of length n.
func NewGonumFFT(n int) *GonumFFT {
	return &GonumFFT{fft: fourier.NewFFT(n)}
}

// Len implements RealFFT.
func (f *GonumFFT) Len() int {
	return f.fft.Len()
}

// Forward implements RealFFT.
func (f *GonumFFT) Forward(dst []complex128, src []float64) []complex128 {
	if len(dst) != f.fft.Len()/2+1 {
		dst = nil
	}
	return f.fft.Coefficients(dst, src)
}

// Radix2FFT is a portable iterative radix-2 RealFFT.
type Radix2FFT struct {
	n       int
	twiddle []complex128
	rev     []int
	work    []complex128
}

// NewRadix2FFT creates a Radix2FFT, n must be a power of two.
func NewRadix2FFT(n int) (*Radix2FFT, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, &ConfigError{Field: "fft_size", Reason: "radix2 requires a power of two"}
	}
	f := &Radix2FFT{
		n:       n,
		twiddle: make([]complex128, n/2),
		rev:     make([]int, n),
		work:    make([]complex128, n),
	}
	for k := range f.twiddle {
		f.twiddle[k] = cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
	}
	bits := 0
	for 1<<uint(bits) < n {
		bits++
	}
	for i := range f.rev {
		r := 0
		for b := 0; b < bits; b++ {
			if i&(1<<uint(b)) != 0 {
				r |= 1 << uint(bits-1-b)
			}
		}
		f.rev[i] = r
	}
	return f, nil
}

// Len implements RealFFT.
func (f *Radix2FFT) Len() int {
	return f.n
}

// Forward implements RealFFT.
func (f *Radix2FFT) Forward(dst []complex128, src []float64) []complex128 {
	if len(src) != f.n {
		panic("dsp: radix2 input length mismatch")
	}
	for i, x := range src {
		f.work[f.rev[i]] = complex(x, 0)
	}
	for size := 2; size <= f.n; size <<= 1 {
		half, step := size/2, f.n/size
		for start := 0; start < f.n; start += size {
			for k := 0; k < half; k++ {
				a := f.work[start+k]
				b := f.work[start+k+half] * f.twiddle[k*step]
				f.work[start+k], f.work[start+k+half] = a+b, a-b
			}
		}
	}
	if len(dst) != f.n/2+1 {
		dst = make([]complex128, f.n/2+1)
	}
	copy(dst, f.work[:f.n/2+1])
	return dst
}
