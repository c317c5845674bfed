package sim

import (
	"errors"
	"sync"

	"github.com/robotalks/eda.go/pkg/afe"
)

// TimerChannels is the number of compare channels.
const TimerChannels = 4

var errCompareChannel = errors.New("invalid compare channel")

// Timer is a simulated timer counting in ticks of its base frequency.
type Timer struct {
	// Bits is the counter width.
	Bits uint

	fabric  *Fabric
	lock    sync.Mutex
	freq    uint32
	cc      [TimerChannels]uint32
	clear   [TimerChannels]bool
	events  [TimerChannels]afe.EventAddr
	count   uint32
	enabled bool
}

// NewTimer creates a 16-bit Timer on the fabric.
func NewTimer(fabric *Fabric) *Timer {
	t := &Timer{Bits: 16, fabric: fabric}
	for n := range t.events {
		t.events[n] = fabric.NewEvent()
	}
	return t
}

// Init implements afe.Timer.
func (t *Timer) Init(freq uint32) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.freq, t.count, t.enabled = freq, 0, false
	t.cc, t.clear = [TimerChannels]uint32{}, [TimerChannels]bool{}
	return nil
}

// Compare implements afe.Timer.
func (t *Timer) Compare(cc int, ticks uint32, clear bool) error {
	if cc < 0 || cc >= TimerChannels || ticks >= 1<<t.Bits {
		return errCompareChannel
	}
	t.lock.Lock()
	t.cc[cc], t.clear[cc] = ticks, clear
	t.lock.Unlock()
	return nil
}

// CompareEvent implements afe.Timer.
func (t *Timer) CompareEvent(cc int) afe.EventAddr {
	return t.events[cc]
}

// Enable implements afe.Timer.
func (t *Timer) Enable() {
	t.lock.Lock()
	t.enabled = true
	t.lock.Unlock()
}

// Disable implements afe.Timer.
func (t *Timer) Disable() {
	t.lock.Lock()
	t.enabled = false
	t.lock.Unlock()
}

// Uninit implements afe.Timer.
func (t *Timer) Uninit() {
	t.Disable()
}

// Frequency returns the base frequency.
func (t *Timer) Frequency() uint32 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.freq
}

// Advance runs the timer for ticks, raising compare events in order.
func (t *Timer) Advance(ticks uint64) {
	for ticks > 0 {
		t.lock.Lock()
		if !t.enabled {
			t.lock.Unlock()
			return
		}
		top := uint64(1) << t.Bits
		next := top
		for _, cc := range t.cc {
			if cc > t.count && uint64(cc) < next {
				next = uint64(cc)
			}
		}
		step := next - uint64(t.count)
		if step > ticks {
			t.count += uint32(ticks)
			t.lock.Unlock()
			return
		}
		ticks -= step
		if next == top {
			t.count = 0
			t.lock.Unlock()
			continue
		}
		t.count = uint32(next)
		var fired []afe.EventAddr
		for n, cc := range t.cc {
			if cc == t.count {
				fired = append(fired, t.events[n])
				if t.clear[n] {
					t.count = 0
				}
			}
		}
		t.lock.Unlock()
		for _, ev := range fired {
			t.fabric.Signal(ev)
		}
	}
}
