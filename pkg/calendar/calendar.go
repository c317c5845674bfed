// Package calendar maintains the wall-clock time base of the device.
//
// The time base is an epoch offset in seconds plus a free-running tick
// counter. The offset is replaced by Set and incremented on every counter
// overflow, so the observed time is continuous across wraps.
package calendar

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

// ErrInvalidTime indicates microseconds out of range.
var ErrInvalidTime = errors.New("invalid time")

const usPerSecond = 1000000

// Calendar converts counter ticks into absolute time.
type Calendar struct {
	counter Counter
	shift   uint

	lock       sync.Mutex
	gen        uint64
	offset     uint64
	tickOffset uint64
}

// New creates a Calendar on top of the counter.
func New(counter Counter) *Calendar {
	return &Calendar{counter: counter, shift: counter.Shift()}
}

// Init resets the time base to zero and starts the counter.
func (c *Calendar) Init() {
	c.counter.Stop()
	c.counter.OnOverflow(c.handleOverflow)
	c.counter.Clear()
	c.lock.Lock()
	c.offset, c.tickOffset = 0, 0
	c.gen++
	c.lock.Unlock()
	c.counter.Start()
}

// TickPeriod is the duration of one counter tick.
func (c *Calendar) TickPeriod() time.Duration {
	return time.Second >> c.shift
}

// WrapSeconds is the number of seconds added on each counter overflow.
func (c *Calendar) WrapSeconds() uint64 {
	return (uint64(1) << c.counter.Bits()) >> c.shift
}

// Set sets the current time.
// The sub-second part is rounded to the nearest tick.
func (c *Calendar) Set(sec uint64, us uint32) error {
	if us >= usPerSecond {
		return ErrInvalidTime
	}
	ticks := (uint64(us)<<c.shift + usPerSecond/2) / usPerSecond
	// The counter must not be cleared under the lock, as the counter
	// calls handleOverflow with its own lock held.
	c.counter.Clear()
	c.lock.Lock()
	c.offset, c.tickOffset = sec, ticks
	c.gen++
	c.lock.Unlock()
	glog.V(2).Infof("calendar set to %d.%06d", sec, us)
	return nil
}

// SetTime sets the current time from time.Time.
func (c *Calendar) SetTime(t time.Time) error {
	return c.Set(uint64(t.Unix()), uint32(t.Nanosecond()/1000))
}

// Get reads the current time.
func (c *Calendar) Get() (sec uint64, us uint32) {
	for {
		gen, offset, tickOffset := c.snapshot()
		ticks := uint64(c.counter.Value()) + tickOffset
		if c.generation() != gen {
			continue
		}
		whole := ticks >> c.shift
		rem := ticks - whole<<c.shift
		return offset + whole, uint32((rem * usPerSecond) >> c.shift)
	}
}

// Now reads the current time as time.Time.
func (c *Calendar) Now() time.Time {
	sec, us := c.Get()
	return time.Unix(int64(sec), int64(us)*1000)
}

func (c *Calendar) snapshot() (gen, offset, tickOffset uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.gen, c.offset, c.tickOffset
}

func (c *Calendar) generation() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.gen
}

func (c *Calendar) handleOverflow() {
	c.lock.Lock()
	c.offset += c.WrapSeconds()
	c.gen++
	c.lock.Unlock()
	glog.V(4).Info("calendar counter overflow")
}
