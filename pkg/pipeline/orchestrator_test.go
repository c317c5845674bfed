package pipeline

import (
	"context"
	"errors"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/afe"
	"github.com/robotalks/eda.go/pkg/afe/sim"
	"github.com/robotalks/eda.go/pkg/calendar"
	"github.com/robotalks/eda.go/pkg/dsp"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/msgs"
)

type fakeExtractor struct {
	values []complex64
	err    error
	calls  int
}

func (e *fakeExtractor) Extract(block []int16, out []complex64) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	copy(out, e.values)
	return nil
}

type chunkSink struct {
	chunks [][]byte
	busy   bool
}

func (s *chunkSink) WritePacket(pkt []byte) error {
	if s.busy {
		return link.ErrBusy
	}
	s.chunks = append(s.chunks, append([]byte(nil), pkt...))
	return nil
}

type pipelineTest struct {
	t       *testing.T
	loop    *fx.Loop
	ext     *fakeExtractor
	counter *calendar.SimCounter
	cal     *calendar.Calendar
	sink    *chunkSink
	o       *Orchestrator
}

func newPipelineTest(t *testing.T, queueSize int) *pipelineTest {
	pt := &pipelineTest{
		t:       t,
		loop:    fx.NewLoop(queueSize),
		ext:     &fakeExtractor{values: make([]complex64, msgs.ImpedanceCount)},
		counter: calendar.NewSimCounter(calendar.DefaultBits, calendar.DefaultShift),
		sink:    &chunkSink{},
	}
	for n := range pt.ext.values {
		pt.ext.values[n] = complex(float32(n)*1000, -float32(n))
	}
	pt.cal = calendar.New(pt.counter)
	pt.cal.Init()
	pt.o = New(pt.ext, pt.cal, link.NewStreamer(), nil)
	pt.loop.Add(pt.o)
	return pt
}

func (pt *pipelineTest) connect(mtu int) *pipelineTest {
	pt.o.LinkUp(pt.sink, mtu, true)
	return pt
}

func (pt *pipelineTest) block(seq uint64) *pipelineTest {
	pt.o.BlockReady(&afe.RawSampleBlock{Samples: make([]int16, 8), Seq: seq})
	return pt
}

func (pt *pipelineTest) receive(data []byte) *pipelineTest {
	pt.o.DataReceived(data)
	return pt
}

func (pt *pipelineTest) run() *pipelineTest {
	require.NoError(pt.t, pt.loop.RunPending(context.Background()))
	return pt
}

func (pt *pipelineTest) expectStats(expected Stats) *pipelineTest {
	assert.Equal(pt.t, expected, pt.o.Stats())
	return pt
}

func TestReportSent(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(256)
	require.NoError(t, pt.cal.Set(1700000000, 500000))
	pt.block(0).run().expectStats(Stats{Blocks: 1, Reports: 1})

	require.Len(t, pt.sink.chunks, 1)
	report, err := msgs.DecodeImpedanceReport(pt.sink.chunks[0])
	require.NoError(t, err)
	assert.Equal(t, pt.ext.values, report.Values())
	require.NotNil(t, report.Timestamp)
	assert.Equal(t, uint64(1700000000), report.Timestamp.Time)
	assert.InDelta(t, 500000, report.Timestamp.Us, float64(pt.cal.TickPeriod()/time.Microsecond))
}

func TestReportChunked(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(20)
	pt.block(0).run()
	require.True(t, len(pt.sink.chunks) > 1)
	var frame []byte
	for _, chunk := range pt.sink.chunks {
		assert.LessOrEqual(t, len(chunk), 20)
		frame = append(frame, chunk...)
	}
	report, err := msgs.DecodeImpedanceReport(frame)
	require.NoError(t, err)
	assert.Equal(t, pt.ext.values, report.Values())
}

func TestDSPFailureDrops(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(256)
	pt.ext.err = &dsp.NonFiniteError{Indexes: []int{0}, Bins: []int{3}}
	pt.block(0).block(1).run().expectStats(Stats{Blocks: 2, DSPDrops: 2})
	assert.Empty(t, pt.sink.chunks)

	pt.ext.err = nil
	pt.block(2).run().expectStats(Stats{Blocks: 3, DSPDrops: 2, Reports: 1})
	assert.Len(t, pt.sink.chunks, 1)
}

// skewedTimeBase reports a sub-second part out of range.
type skewedTimeBase struct{}

func (skewedTimeBase) Get() (uint64, uint32)    { return 1700000000, 1000000 }
func (skewedTimeBase) Set(uint64, uint32) error { return nil }

func TestEncodeFailureDrops(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(256)
	pt.o.TimeBase = skewedTimeBase{}
	pt.block(0).block(1).run().expectStats(Stats{Blocks: 2, EncodeDrops: 2})
	assert.Empty(t, pt.sink.chunks)

	pt.o.TimeBase = pt.cal
	pt.block(2).run().expectStats(Stats{Blocks: 3, EncodeDrops: 2, Reports: 1})
	require.Len(t, pt.sink.chunks, 1)
	_, err := msgs.DecodeImpedanceReport(pt.sink.chunks[0])
	require.NoError(t, err)
}

func TestBackpressureSkips(t *testing.T) {
	pt := newPipelineTest(t, 0)
	pt.block(0).run().expectStats(Stats{Blocks: 1, BusyDrops: 1})

	pt.connect(20)
	pt.sink.busy = true
	pt.block(1).run().expectStats(Stats{Blocks: 2, BusyDrops: 1, Reports: 1})
	state, _, offset := pt.o.Streamer.State()
	assert.Equal(t, link.Sending, state)
	assert.Equal(t, 0, offset)

	pt.block(2).run().expectStats(Stats{Blocks: 3, BusyDrops: 2, Reports: 1})

	pt.sink.busy = false
	pt.o.TxReady()
	pt.run()
	state, _, _ = pt.o.Streamer.State()
	assert.Equal(t, link.Idle, state)
	report, err := msgs.DecodeImpedanceReport(joined(pt.sink.chunks))
	require.NoError(t, err)
	assert.Equal(t, pt.ext.values, report.Values())
}

func TestMissedTxReadyRecovers(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(20)
	pt.sink.busy = true
	pt.block(0).run()
	pt.sink.busy = false
	// No TxReady arrives, the next block resumes the frame in flight.
	pt.block(1).run().expectStats(Stats{Blocks: 2, Reports: 2})
	assert.Equal(t, 2*len(pt.o.frame), len(joined(pt.sink.chunks)))
}

func TestDisconnectResetsSend(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(20)
	pt.sink.busy = true
	pt.block(0).run()
	pt.o.LinkDown(errors.New("lost"))
	state, _, _ := pt.o.Streamer.State()
	assert.Equal(t, link.Idle, state)
	pt.run()

	pt.sink = &chunkSink{}
	pt.connect(256).block(1).run().expectStats(Stats{Blocks: 2, Reports: 2})
	require.Len(t, pt.sink.chunks, 1)
	_, err := msgs.DecodeImpedanceReport(pt.sink.chunks[0])
	assert.NoError(t, err)
}

func TestNotifyDisabledSkips(t *testing.T) {
	pt := newPipelineTest(t, 0).connect(256)
	pt.o.NotifyChanged(false)
	pt.block(0).run().expectStats(Stats{Blocks: 1, BusyDrops: 1})
	pt.o.NotifyChanged(true)
	pt.block(1).run().expectStats(Stats{Blocks: 2, BusyDrops: 1, Reports: 1})
}

func TestTimeSyncSetsCalendar(t *testing.T) {
	pt := newPipelineTest(t, 0)
	frame, err := msgs.Encode(&msgs.TimeSync{Time: 1700000000, Us: 250000})
	require.NoError(t, err)
	pt.receive(frame[:5]).receive(frame[5:]).run().expectStats(Stats{TimeSyncs: 1})
	sec, us := pt.cal.Get()
	assert.Equal(t, uint64(1700000000), sec)
	assert.InDelta(t, 250000, us, float64(pt.cal.TickPeriod()/time.Microsecond))
}

func TestInboundDecodeErrors(t *testing.T) {
	pt := newPipelineTest(t, 0)
	require.NoError(t, pt.cal.Set(42, 0))

	report, err := msgs.Encode(msgs.NewImpedanceReport(pt.ext.values, nil))
	require.NoError(t, err)
	pt.receive(report).run().expectStats(Stats{DecodeErrors: 1})
	pt.receive([]byte{0x05, 0x01, 0x00}).run().expectStats(Stats{DecodeErrors: 2})

	sec, _ := pt.cal.Get()
	assert.Equal(t, uint64(42), sec)

	frame, err := msgs.Encode(msgs.TimeSyncFrom(time.Unix(100, 0)))
	require.NoError(t, err)
	pt.receive(frame).run().expectStats(Stats{DecodeErrors: 2, TimeSyncs: 1})
	sec, _ = pt.cal.Get()
	assert.Equal(t, uint64(100), sec)
}

func TestQueueFullDropsBlock(t *testing.T) {
	pt := newPipelineTest(t, 1).connect(256)
	pt.block(0).block(1)
	assert.Equal(t, uint64(1), pt.o.Stats().QueueDrops)
	assert.Equal(t, uint64(1), pt.loop.Stats().Dropped)
	pt.run().expectStats(Stats{Blocks: 1, Reports: 1, QueueDrops: 1})
}

func TestFaultStopsLoop(t *testing.T) {
	pt := newPipelineTest(t, 1)
	pt.block(0)
	pt.o.Fault(afe.ErrOverrun)
	err := pt.loop.RunPending(context.Background())
	require.Error(t, err)
	assert.True(t, fx.IsFatal(err))
	assert.True(t, IsOverrun(err))
	assert.Equal(t, 0, pt.ext.calls)
}

func TestSimulatedBoard(t *testing.T) {
	cfg := dsp.DefaultConfig()
	load := sim.NewRCLoad(100e3, 10e-9, cfg)
	board := sim.NewBoard(load)
	ext, err := dsp.NewExtractor(cfg, nil)
	require.NoError(t, err)
	cal := calendar.New(board.Counter)
	cal.Init()
	require.NoError(t, cal.Set(1000, 0))

	loop := fx.NewLoop(0)
	o := New(ext, cal, link.NewStreamer(), loop)
	loop.Handle(o)
	sink := &chunkSink{}
	o.LinkUp(sink, 256, true)

	acq := board.Acquirer(cfg.BlockSize)
	acq.OnFault = o.Fault
	require.NoError(t, acq.Start(o.BlockReady))
	require.NoError(t, board.ClockGenerator(5).Start(uint32(cfg.SampleRate)))

	blockTime := time.Duration(cfg.BlockSize*244) * time.Microsecond
	for n := 0; n < 3; n++ {
		board.Advance(blockTime)
		require.NoError(t, loop.RunPending(context.Background()))
	}
	assert.Equal(t, Stats{Blocks: 3, Reports: 3}, o.Stats())
	require.Len(t, sink.chunks, 3)

	report, err := msgs.DecodeImpedanceReport(sink.chunks[2])
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), report.Timestamp.Time)
	for n, f := range cfg.Frequencies {
		expected := load.Impedance(f)
		tolerance := cmplx.Abs(expected) * 0.01
		actual := report.Values()[n]
		assert.InDelta(t, real(expected), real(actual), tolerance, "%g Hz", f)
		assert.InDelta(t, imag(expected), imag(actual), tolerance, "%g Hz", f)
	}
}

func joined(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
