package sim

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/robotalks/eda.go/pkg/afe"
)

// MaxQueuedBuffers is the depth of the ADC buffer queue.
const MaxQueuedBuffers = 2

var (
	errBufferQueueFull = errors.New("adc buffer queue full")
	errBufferSize      = errors.New("adc buffer size not a multiple of channels")
	errNotInitialized  = errors.New("adc not initialized")
)

// Source provides the analog input voltages of the ADC channels.
type Source interface {
	// Sample writes the channel voltages of sample n into dst.
	Sample(n uint64, dst []float64)
}

// ADC is a simulated successive-approximation converter.
type ADC struct {
	Source Source
	// Noise is the RMS input noise in volts per conversion.
	Noise float64

	lock    sync.Mutex
	rnd     *rand.Rand
	task    afe.TaskAddr
	cfg     afe.ADCConfig
	done    func([]int16)
	queue   [][]int16
	pos     int
	samples uint64
	lost    uint64
	volts   []float64
	inited  bool
}

// NewADC creates an ADC on the fabric.
func NewADC(fabric *Fabric, src Source) *ADC {
	a := &ADC{Source: src, rnd: rand.New(rand.NewSource(1))}
	a.task = fabric.NewTask(a.sample)
	return a
}

// Init implements afe.ADC.
func (a *ADC) Init(cfg afe.ADCConfig, done func([]int16)) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.cfg, a.done = cfg, done
	a.queue, a.pos = nil, 0
	a.volts = make([]float64, cfg.Channels)
	a.inited = true
	return nil
}

// Queue implements afe.ADC.
func (a *ADC) Queue(buf []int16) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	switch {
	case !a.inited:
		return errNotInitialized
	case len(a.queue) >= MaxQueuedBuffers:
		return errBufferQueueFull
	case len(buf) == 0 || len(buf)%a.cfg.Channels != 0:
		return errBufferSize
	}
	a.queue = append(a.queue, buf)
	return nil
}

// SampleTask implements afe.ADC.
func (a *ADC) SampleTask() afe.TaskAddr {
	return a.task
}

// Uninit implements afe.ADC.
func (a *ADC) Uninit() {
	a.lock.Lock()
	a.inited, a.queue, a.done = false, nil, nil
	a.lock.Unlock()
}

// Samples returns the number of converted samples.
func (a *ADC) Samples() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.samples
}

// Lost returns the number of samples triggered without a buffer.
func (a *ADC) Lost() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.lost
}

func (a *ADC) sample() {
	a.lock.Lock()
	if !a.inited {
		a.lock.Unlock()
		return
	}
	if len(a.queue) == 0 {
		a.lost++
		a.samples++
		a.lock.Unlock()
		return
	}
	buf := a.queue[0]
	if a.Source != nil {
		a.Source.Sample(a.samples, a.volts)
	}
	for ch, v := range a.volts {
		buf[a.pos+ch] = a.convert(v)
	}
	a.samples++
	a.pos += len(a.volts)
	if a.pos < len(buf) {
		a.lock.Unlock()
		return
	}
	a.queue, a.pos = a.queue[1:], 0
	done := a.done
	a.lock.Unlock()
	if done != nil {
		done(buf)
	}
}

func (a *ADC) convert(v float64) int16 {
	over := a.cfg.Oversample
	if over < 1 {
		over = 1
	}
	var sum float64
	for n := 0; n < over; n++ {
		sum += v + a.Noise*a.rnd.NormFloat64()
	}
	code := math.Round(sum / float64(over) / a.cfg.VoltsPerCode())
	limit := float64(uint(1) << (a.cfg.Resolution - 1))
	return int16(math.Max(-limit, math.Min(limit-1, code)))
}
