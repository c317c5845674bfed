// Package dsp extracts complex impedance from dual-channel raw samples.
//
// Voltage and current samples are kept in two sliding windows of FFTSize
// samples. Each raw block shifts the windows and the impedance at every
// configured frequency is computed as the ratio of the voltage and current
// spectra at the corresponding bin.
package dsp
