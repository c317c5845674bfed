// Package pipeline sequences captured blocks into impedance reports and
// routes inbound time sync commands to the time base.
//
// Producers (the acquirer and the link endpoint) only post events; all work
// runs in the loop, one event at a time.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/afe"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/framing"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/msgs"
)

// ImpedanceExtractor computes impedances from a raw block.
type ImpedanceExtractor interface {
	Extract(block []int16, out []complex64) error
}

// TimeBase is the device calendar.
type TimeBase interface {
	Get() (sec uint64, us uint32)
	Set(sec uint64, us uint32) error
}

// Stats are the counters of an Orchestrator.
type Stats struct {
	Blocks       uint64
	Reports      uint64
	DSPDrops     uint64
	EncodeDrops  uint64
	BusyDrops    uint64
	QueueDrops   uint64
	TimeSyncs    uint64
	DecodeErrors uint64
}

// Orchestrator handles the pipeline events.
type Orchestrator struct {
	Extractor ImpedanceExtractor
	TimeBase  TimeBase
	Streamer  *link.Streamer
	Poster    fx.Poster

	values []complex64
	frame  []byte
	parser *framing.Parser

	lock  sync.Mutex
	stats Stats

	queueDrops uint64
	fault      atomic.Value
}

// New creates an Orchestrator posting to poster.
func New(extractor ImpedanceExtractor, tb TimeBase, streamer *link.Streamer, poster fx.Poster) *Orchestrator {
	return &Orchestrator{
		Extractor: extractor,
		TimeBase:  tb,
		Streamer:  streamer,
		Poster:    poster,
		values:    make([]complex64, msgs.ImpedanceCount),
		frame:     make([]byte, 0, msgs.KindImpedanceReport.MaxFrameSize()),
		parser:    framing.NewParser(msgs.KindTimeSync.MaxFrameSize()),
	}
}

// AddToLoop implements LoopAdder.
func (o *Orchestrator) AddToLoop(l *fx.Loop) {
	if o.Poster == nil {
		o.Poster = l
	}
	l.Handle(o)
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	o.lock.Lock()
	s := o.stats
	o.lock.Unlock()
	s.QueueDrops = atomic.LoadUint64(&o.queueDrops)
	return s
}

func (o *Orchestrator) count(fn func(*Stats)) {
	o.lock.Lock()
	fn(&o.stats)
	o.lock.Unlock()
}

func (o *Orchestrator) post(ev fx.Event) bool {
	if err := o.Poster.Post(ev); err != nil {
		atomic.AddUint64(&o.queueDrops, 1)
		return false
	}
	return true
}

// BlockReady is the acquirer handler.
// A block that can't be queued is released right away.
func (o *Orchestrator) BlockReady(block *afe.RawSampleBlock) {
	if !o.post(BufferReady{Block: block}) {
		block.Release()
	}
}

// Fault is the acquirer fault handler.
// The fault is remembered so it stops the loop even when the queue is full.
func (o *Orchestrator) Fault(err error) {
	o.fault.Store(Fault{Err: err})
	o.post(Fault{Err: err})
}

// Link state is applied to the streamer as it changes, the events only
// reach the loop for the inbound side, so a full queue never loses it.

// LinkUp implements link.Handler.
func (o *Orchestrator) LinkUp(sink link.PacketWriter, mtu int, notify bool) {
	o.Streamer.SetMTU(mtu)
	o.Streamer.Attach(sink, notify)
	o.post(Connected{MTU: mtu, Notify: notify})
}

// LinkDown implements link.Handler.
func (o *Orchestrator) LinkDown(err error) {
	o.Streamer.SetConnected(false)
	o.post(Disconnected{Err: err})
}

// NotifyChanged implements link.Handler.
func (o *Orchestrator) NotifyChanged(enabled bool) {
	o.Streamer.SetNotify(enabled)
	o.post(NotifyChanged{Enabled: enabled})
}

// DataReceived implements link.Handler.
func (o *Orchestrator) DataReceived(data []byte) {
	o.post(DataReceived{Data: append([]byte(nil), data...)})
}

// TxReady implements link.Handler.
func (o *Orchestrator) TxReady() {
	o.post(TxReady{})
}

// HandleEvent implements Handler.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev fx.Event) error {
	if f, ok := o.fault.Load().(Fault); ok {
		if block, ok := ev.(BufferReady); ok {
			block.Block.Release()
		}
		return fx.Fatal(f.Err)
	}
	switch e := ev.(type) {
	case Connected:
		glog.Infof("pipeline: link up, mtu %d, notify %v", e.MTU, e.Notify)
		o.parser.Reset()
	case Disconnected:
		o.parser.Reset()
		if e.Err != nil {
			glog.Warningf("pipeline: link lost: %v", e.Err)
		}
	case NotifyChanged:
		glog.Infof("pipeline: notify %v", e.Enabled)
	case TxReady:
		o.Streamer.OnTxReady()
	case BufferReady:
		o.processBlock(e.Block)
	case DataReceived:
		o.processData(e.Data)
	case Fault:
		return fx.Fatal(e.Err)
	}
	return nil
}

func (o *Orchestrator) processBlock(block *afe.RawSampleBlock) {
	o.count(func(s *Stats) { s.Blocks++ })
	err := o.Extractor.Extract(block.Samples, o.values)
	seq := block.Seq
	block.Release()
	if err != nil {
		o.count(func(s *Stats) { s.DSPDrops++ })
		glog.Warningf("pipeline: block %d dropped: %v", seq, err)
		return
	}

	sec, us := o.TimeBase.Get()
	report := msgs.NewImpedanceReport(o.values, &msgs.Timestamp{Time: sec, Us: us})
	frame, err := msgs.AppendFrame(o.frame[:0], report)
	if err != nil {
		o.count(func(s *Stats) { s.EncodeDrops++ })
		glog.Warningf("pipeline: report %d dropped: %v", seq, err)
		return
	}
	o.frame = frame

	// A ready notification may have been dropped by a full queue.
	if state, _, _ := o.Streamer.State(); state == link.Sending {
		o.Streamer.OnTxReady()
	}
	if !o.Streamer.Send(frame) {
		o.count(func(s *Stats) { s.BusyDrops++ })
		glog.V(2).Infof("pipeline: report %d skipped, link not ready", seq)
		return
	}
	o.count(func(s *Stats) { s.Reports++ })
	glog.V(4).Infof("pipeline: report %d at %d.%06d", seq, sec, us)
}

func (o *Orchestrator) processData(data []byte) {
	dropped := o.parser.Feed(data, func(frame []byte) {
		msg, err := msgs.DecodeTimeSync(frame)
		if err != nil {
			o.count(func(s *Stats) { s.DecodeErrors++ })
			glog.Errorf("pipeline: decode time sync: %v", err)
			return
		}
		if err = o.TimeBase.Set(msg.Time, msg.Us); err != nil {
			o.count(func(s *Stats) { s.DecodeErrors++ })
			glog.Errorf("pipeline: set time: %v", err)
			return
		}
		o.count(func(s *Stats) { s.TimeSyncs++ })
		glog.Infof("pipeline: time synced to %d.%06d", msg.Time, msg.Us)
	})
	if dropped > 0 {
		o.count(func(s *Stats) { s.DecodeErrors += uint64(dropped) })
		glog.Errorf("pipeline: %d oversized frames discarded", dropped)
	}
}

// IsOverrun tells if err stopped the pipeline because of an acquisition
// overrun.
func IsOverrun(err error) bool {
	return errors.Is(err, afe.ErrOverrun)
}
