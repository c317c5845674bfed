package afe

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// RawSampleBlock is a filled buffer of interleaved (voltage, current) codes.
// The buffer belongs to the consumer until Release is called.
type RawSampleBlock struct {
	Samples []int16
	Seq     uint64

	acq *Acquirer
	idx int
}

// Release returns the buffer to the acquisition.
func (b *RawSampleBlock) Release() {
	if b.acq != nil {
		b.acq.release(b.idx)
		b.acq = nil
	}
}

// Acquirer captures raw blocks with a pair of alternating buffers.
// Each filled buffer is re-queued immediately, so capture has no gap.
type Acquirer struct {
	ADC       ADC
	Config    ADCConfig
	BlockSize int
	// OnFault receives an error matching ErrOverrun, after which no more
	// blocks are delivered.
	OnFault func(error)

	lock    sync.Mutex
	buffers [2][]int16
	held    [2]bool
	seq     uint64
	failed  bool
	handler func(*RawSampleBlock)
	running bool
}

// Start configures the ADC and queues both buffers.
func (a *Acquirer) Start(handler func(*RawSampleBlock)) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.running {
		return ErrAlreadyStarted
	}
	size := a.BlockSize * a.Config.Channels
	for n := range a.buffers {
		a.buffers[n] = make([]int16, size)
		a.held[n] = false
	}
	a.seq, a.failed, a.handler = 0, false, handler
	if err := initErr("adc", a.ADC.Init(a.Config, a.done)); err != nil {
		return err
	}
	for n := range a.buffers {
		if err := initErr("adc", a.ADC.Queue(a.buffers[n])); err != nil {
			a.ADC.Uninit()
			return err
		}
	}
	a.running = true
	return nil
}

// Stop releases the ADC.
func (a *Acquirer) Stop() {
	a.lock.Lock()
	running := a.running
	a.running = false
	a.lock.Unlock()
	if running {
		a.ADC.Uninit()
	}
}

// Blocks returns the number of delivered blocks.
func (a *Acquirer) Blocks() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.seq
}

func (a *Acquirer) done(buf []int16) {
	a.lock.Lock()
	if !a.running || a.failed {
		a.lock.Unlock()
		return
	}
	idx := 0
	if len(buf) > 0 && &buf[0] == &a.buffers[1][0] {
		idx = 1
	}
	// The converter is now filling the other buffer.
	if a.held[1-idx] {
		a.failed = true
		a.lock.Unlock()
		glog.Errorf("afe: buffer %d still in use at block %d", 1-idx, a.seq)
		if fn := a.OnFault; fn != nil {
			fn(ErrOverrun)
		}
		return
	}
	a.held[idx] = true
	a.lock.Unlock()

	// Without the re-arm the converter runs dry after the other buffer.
	if err := a.ADC.Queue(buf); err != nil {
		a.lock.Lock()
		a.failed, a.held[idx] = true, false
		a.lock.Unlock()
		glog.Errorf("afe: re-queue buffer %d: %v", idx, err)
		if fn := a.OnFault; fn != nil {
			fn(fmt.Errorf("re-arm buffer %d: %v: %w", idx, err, ErrOverrun))
		}
		return
	}

	a.lock.Lock()
	block := &RawSampleBlock{Samples: buf, Seq: a.seq, acq: a, idx: idx}
	a.seq++
	handler := a.handler
	a.lock.Unlock()
	glog.V(4).Infof("afe: block %d ready", block.Seq)
	if handler != nil {
		handler(block)
	} else {
		block.Release()
	}
}

func (a *Acquirer) release(idx int) {
	a.lock.Lock()
	a.held[idx] = false
	a.lock.Unlock()
}
