package sim

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/afe"
	"github.com/robotalks/eda.go/pkg/calendar"
)

// DefaultStep is the default pacing interval of a Board.
const DefaultStep = 20 * time.Millisecond

// Board assembles the simulated peripherals sharing one time line.
type Board struct {
	Fabric  *Fabric
	Timer   *Timer
	GPIO    *GPIO
	ADC     *ADC
	Counter *calendar.SimCounter
	// Step is the wall clock interval between two advances.
	Step time.Duration

	lock    sync.Mutex
	carry   time.Duration
	elapsed time.Duration
}

// NewBoard creates a Board sampling src.
func NewBoard(src Source) *Board {
	fabric := NewFabric()
	return &Board{
		Fabric:  fabric,
		Timer:   NewTimer(fabric),
		GPIO:    NewGPIO(fabric),
		ADC:     NewADC(fabric, src),
		Counter: calendar.NewSimCounter(calendar.DefaultBits, calendar.DefaultShift),
		Step:    DefaultStep,
	}
}

// ClockGenerator returns a ClockGenerator wired to the board.
func (b *Board) ClockGenerator(pin int) *afe.ClockGenerator {
	return &afe.ClockGenerator{
		Timer:        b.Timer,
		GPIO:         b.GPIO,
		Interconnect: b.Fabric,
		ADC:          b.ADC,
		Pin:          pin,
	}
}

// Acquirer returns an Acquirer on the board ADC.
func (b *Board) Acquirer(blockSize int) *afe.Acquirer {
	return &afe.Acquirer{ADC: b.ADC, Config: afe.DefaultADCConfig(), BlockSize: blockSize}
}

// Advance moves the simulated time forward by d.
func (b *Board) Advance(d time.Duration) {
	b.lock.Lock()
	d += b.carry
	ticks := d / time.Microsecond
	b.carry = d - ticks*time.Microsecond
	b.elapsed += ticks * time.Microsecond
	b.lock.Unlock()
	b.Timer.Advance(uint64(ticks))
	b.Counter.AdvanceDuration(ticks * time.Microsecond)
}

// Elapsed returns the simulated time.
func (b *Board) Elapsed() time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.elapsed
}

// Name implements Named.
func (b *Board) Name() string {
	return "board"
}

// Run implements Runnable, pacing the simulation with the wall clock.
func (b *Board) Run(ctx context.Context) error {
	step := b.Step
	if step <= 0 {
		step = DefaultStep
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	last := time.Now()
	glog.Infof("sim: board running, step %v", step)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.Advance(now.Sub(last))
			last = now
		}
	}
}
