package afe

import (
	"github.com/golang/glog"
)

// TimerFrequency is the timer base frequency in Hz.
const TimerFrequency = 1000000

// ClockGenerator produces the excitation clock on a pin and triggers an ADC
// conversion every period. Once started it runs without CPU involvement.
type ClockGenerator struct {
	Timer        Timer
	GPIO         GPIO
	Interconnect Interconnect
	ADC          ADC
	Pin          int

	period  uint32
	running bool
}

// Start wires the timer compare events to the pin toggle and ADC sample
// tasks: full period (clear) toggles and samples, half period toggles.
// On failure everything set up so far is released again.
func (g *ClockGenerator) Start(sampleRate uint32) (err error) {
	if g.running {
		return ErrAlreadyStarted
	}
	if sampleRate == 0 || sampleRate > TimerFrequency/2 {
		return initErr("timer", ErrInvalidRate)
	}
	period := TimerFrequency / sampleRate
	if err = initErr("timer", g.Timer.Init(TimerFrequency)); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			g.release()
		}
	}()
	if err = initErr("timer", g.Timer.Compare(0, period, true)); err != nil {
		return err
	}
	if err = initErr("timer", g.Timer.Compare(1, period/2, false)); err != nil {
		return err
	}
	if err = initErr("gpio", g.GPIO.InitToggle(g.Pin)); err != nil {
		return err
	}
	toggle, sample := g.GPIO.ToggleTask(g.Pin), g.ADC.SampleTask()

	full, err := g.Interconnect.Alloc()
	if err != nil {
		return initErr("interconnect", err)
	}
	if err = g.Interconnect.Assign(full, g.Timer.CompareEvent(0), toggle); err == nil {
		err = g.Interconnect.Fork(full, sample)
	}
	if err != nil {
		return initErr("interconnect", err)
	}
	half, err := g.Interconnect.Alloc()
	if err != nil {
		return initErr("interconnect", err)
	}
	if err = g.Interconnect.Assign(half, g.Timer.CompareEvent(1), toggle); err != nil {
		return initErr("interconnect", err)
	}
	for _, ch := range []Channel{full, half} {
		if err = g.Interconnect.Enable(ch); err != nil {
			return initErr("interconnect", err)
		}
	}
	g.Timer.Enable()
	g.period, g.running = period, true
	glog.Infof("afe: clock started at %d Hz (period %d us)", sampleRate, period)
	return nil
}

// Period returns the clock period in timer ticks.
func (g *ClockGenerator) Period() uint32 {
	return g.period
}

// Running tells if the clock is running.
func (g *ClockGenerator) Running() bool {
	return g.running
}

// Stop disables the timer and releases the channels.
func (g *ClockGenerator) Stop() {
	if !g.running {
		return
	}
	g.Timer.Disable()
	g.release()
	g.running = false
	glog.Info("afe: clock stopped")
}

func (g *ClockGenerator) release() {
	g.Interconnect.FreeAll()
	g.GPIO.Uninit(g.Pin)
	g.Timer.Uninit()
}
