// Package afe drives the analog front-end: the excitation clock and the
// synchronized dual-channel ADC acquisition.
//
// Peripherals are injected as capability handles so the same wiring runs on
// real hardware bindings or on the simulated board in package sim.
package afe

// EventAddr identifies a peripheral event on the interconnect.
type EventAddr uint32

// TaskAddr identifies a peripheral task on the interconnect.
type TaskAddr uint32

// Channel is an allocated interconnect channel.
type Channel int

// Timer is a hardware timer/counter with compare channels.
type Timer interface {
	// Init configures the base frequency in Hz.
	Init(freq uint32) error
	// Compare sets the compare value of channel cc.
	// When clear is set, the counter restarts on match.
	Compare(cc int, ticks uint32, clear bool) error
	// CompareEvent returns the event raised on compare match.
	CompareEvent(cc int) EventAddr
	Enable()
	Disable()
	Uninit()
}

// GPIO drives output pins from interconnect tasks.
type GPIO interface {
	// InitToggle configures pin as an output toggled by a task.
	InitToggle(pin int) error
	// ToggleTask returns the task toggling pin.
	ToggleTask(pin int) TaskAddr
	Uninit(pin int)
}

// ADC is a multi-channel converter in continuous double-buffered mode.
type ADC interface {
	// Init configures the converter, done is called with each filled buffer.
	Init(cfg ADCConfig, done func(buf []int16)) error
	// Queue appends a buffer to be filled.
	Queue(buf []int16) error
	// SampleTask returns the task starting one conversion of all channels.
	SampleTask() TaskAddr
	Uninit()
}

// Interconnect routes events to tasks without CPU involvement.
type Interconnect interface {
	Alloc() (Channel, error)
	Assign(ch Channel, ev EventAddr, task TaskAddr) error
	// Fork adds a second task to the channel.
	Fork(ch Channel, task TaskAddr) error
	Enable(ch Channel) error
	FreeAll()
}

// Reference selects the ADC reference voltage.
type Reference int

// Supported references.
const (
	RefInternal Reference = iota
	RefVDD4
)

// ADCConfig configures the converter.
type ADCConfig struct {
	// Resolution in bits of a signed differential conversion.
	Resolution uint
	// Oversample is the number of conversions averaged per sample.
	Oversample int
	Gain       float64
	Reference  Reference
	// VDD is the supply voltage in volts.
	VDD float64
	// Channels is the number of differential channels, converted in order.
	Channels int
}

// DefaultADCConfig is the front-end converter setup: two differential
// channels with a +/- VDD/2 input range.
func DefaultADCConfig() ADCConfig {
	return ADCConfig{
		Resolution: 14,
		Oversample: 4,
		Gain:       0.5,
		Reference:  RefVDD4,
		VDD:        3.0,
		Channels:   2,
	}
}

// ReferenceVolts returns the reference voltage.
func (c ADCConfig) ReferenceVolts() float64 {
	if c.Reference == RefVDD4 {
		return c.VDD / 4
	}
	return 0.6
}

// FullScale returns the input range in volts (+/-).
func (c ADCConfig) FullScale() float64 {
	return c.ReferenceVolts() / c.Gain
}

// VoltsPerCode returns the voltage of one code.
func (c ADCConfig) VoltsPerCode() float64 {
	return c.FullScale() / float64(uint(1)<<(c.Resolution-1))
}
