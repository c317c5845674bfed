package host

import (
	"math/cmplx"
	"time"
)

// Sample is a decoded impedance report.
type Sample struct {
	Device string
	Seq    uint64
	// Time is the device time of the report.
	Time time.Time
	// Elapsed is Time relative to the start of the measurement.
	Elapsed     time.Duration
	Frequencies []float64
	Data        []complex64
	// Circle fitted through Data, zero when the fit failed.
	Circle Circle
}

// Conductance returns the magnitude of the admittance at index n in µS.
func (s Sample) Conductance(n int) float64 {
	z := cmplx.Abs(complex128(s.Data[n]))
	if z == 0 {
		return 0
	}
	return 1e6 / z
}
