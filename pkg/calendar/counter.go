package calendar

import (
	"sync"
	"time"
)

// Counter is a free-running tick counter with overflow notification.
// Implementations must run the overflow handler before Value returns a
// wrapped count, so a reader never observes the wrap without the handler.
type Counter interface {
	// Bits is the counter width, the count wraps at 1<<Bits.
	Bits() uint
	// Shift is the tick rate as a power of two, 1<<Shift ticks per second.
	Shift() uint
	// Start starts counting.
	Start()
	// Stop stops counting.
	Stop()
	// Clear resets the count to zero.
	Clear()
	// Value reads the current count.
	Value() uint32
	// OnOverflow installs the handler invoked on every wrap.
	OnOverflow(func())
}

// Reference counter geometry: 24-bit counter at 4096 ticks per second.
const (
	DefaultBits  uint = 24
	DefaultShift uint = 12
)

// SimCounter is a Counter advanced explicitly.
type SimCounter struct {
	bits  uint
	shift uint

	lock    sync.Mutex
	value   uint32
	running bool
	frac    int64
	handler func()
}

// NewSimCounter creates a SimCounter.
func NewSimCounter(bits, shift uint) *SimCounter {
	return &SimCounter{bits: bits, shift: shift}
}

// Bits implements Counter.
func (s *SimCounter) Bits() uint { return s.bits }

// Shift implements Counter.
func (s *SimCounter) Shift() uint { return s.shift }

// Start implements Counter.
func (s *SimCounter) Start() {
	s.lock.Lock()
	s.running = true
	s.lock.Unlock()
}

// Stop implements Counter.
func (s *SimCounter) Stop() {
	s.lock.Lock()
	s.running = false
	s.lock.Unlock()
}

// Clear implements Counter.
func (s *SimCounter) Clear() {
	s.lock.Lock()
	s.value, s.frac = 0, 0
	s.lock.Unlock()
}

// Value implements Counter.
func (s *SimCounter) Value() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.value
}

// OnOverflow implements Counter.
func (s *SimCounter) OnOverflow(handler func()) {
	s.lock.Lock()
	s.handler = handler
	s.lock.Unlock()
}

// Advance moves the counter forward by ticks, the overflow handler is
// called once per wrap. It does nothing if the counter is stopped.
func (s *SimCounter) Advance(ticks uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance(ticks)
}

// AdvanceDuration moves the counter forward by d, sub-tick remainders
// are carried to the next call.
func (s *SimCounter) AdvanceDuration(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	total := s.frac + d.Nanoseconds()<<s.shift
	s.frac = total % int64(time.Second)
	s.advance(uint64(total / int64(time.Second)))
}

func (s *SimCounter) advance(ticks uint64) {
	if !s.running {
		return
	}
	period := uint64(1) << s.bits
	for ticks > 0 {
		room := period - uint64(s.value)
		if ticks < room {
			s.value += uint32(ticks)
			return
		}
		ticks -= room
		s.value = 0
		if s.handler != nil {
			s.handler()
		}
	}
}

// ClockCounter is a Counter driven by the system monotonic clock.
type ClockCounter struct {
	bits  uint
	shift uint

	lock    sync.Mutex
	base    time.Time
	stopped uint64
	running bool
	wraps   uint64
	handler func()
	now     func() time.Time
}

// NewClockCounter creates a ClockCounter.
func NewClockCounter(bits, shift uint) *ClockCounter {
	return &ClockCounter{bits: bits, shift: shift, now: time.Now}
}

// Bits implements Counter.
func (c *ClockCounter) Bits() uint { return c.bits }

// Shift implements Counter.
func (c *ClockCounter) Shift() uint { return c.shift }

// Start implements Counter.
func (c *ClockCounter) Start() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.running {
		c.base = c.now().Add(-c.ticksDuration(c.stopped))
		c.running = true
	}
}

// Stop implements Counter.
func (c *ClockCounter) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.running {
		c.stopped = c.elapsed()
		c.running = false
	}
}

// Clear implements Counter.
func (c *ClockCounter) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.base, c.stopped, c.wraps = c.now(), 0, 0
}

// Value implements Counter.
func (c *ClockCounter) Value() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	ticks := c.stopped
	if c.running {
		ticks = c.elapsed()
	}
	for wraps := ticks >> c.bits; c.wraps < wraps; c.wraps++ {
		if c.handler != nil {
			c.handler()
		}
	}
	return uint32(ticks & (uint64(1)<<c.bits - 1))
}

// OnOverflow implements Counter.
func (c *ClockCounter) OnOverflow(handler func()) {
	c.lock.Lock()
	c.handler = handler
	c.lock.Unlock()
}

func (c *ClockCounter) elapsed() uint64 {
	d := c.now().Sub(c.base)
	if d < 0 {
		return 0
	}
	sec := uint64(d / time.Second)
	ns := uint64(d % time.Second)
	return sec<<c.shift + ns<<c.shift/uint64(time.Second)
}

func (c *ClockCounter) ticksDuration(ticks uint64) time.Duration {
	sec := ticks >> c.shift
	rem := ticks - sec<<c.shift
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)>>c.shift)
}
