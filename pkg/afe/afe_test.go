package afe_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/afe"
	"github.com/robotalks/eda.go/pkg/afe/sim"
)

type constSource struct {
	v, i float64
}

func (s constSource) Sample(n uint64, dst []float64) {
	dst[0], dst[1] = s.v, s.i
}

type blockSink struct {
	lock    sync.Mutex
	blocks  []*afe.RawSampleBlock
	faults  []error
	release bool
}

func (s *blockSink) handle(b *afe.RawSampleBlock) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.blocks = append(s.blocks, b)
	if s.release {
		b.Release()
	}
}

func (s *blockSink) fault(err error) {
	s.lock.Lock()
	s.faults = append(s.faults, err)
	s.lock.Unlock()
}

func periods(n int) time.Duration {
	return time.Duration(n*244) * time.Microsecond
}

func startBoard(t *testing.T, src sim.Source, blockSize int, sink *blockSink) (*sim.Board, *afe.ClockGenerator, *afe.Acquirer) {
	board := sim.NewBoard(src)
	acq := board.Acquirer(blockSize)
	acq.OnFault = sink.fault
	require.NoError(t, acq.Start(sink.handle))
	clk := board.ClockGenerator(5)
	require.NoError(t, clk.Start(4096))
	return board, clk, acq
}

func TestClockWiring(t *testing.T) {
	sink := &blockSink{release: true}
	board, clk, acq := startBoard(t, constSource{}, 4, sink)
	assert.Equal(t, uint32(244), clk.Period())
	assert.True(t, clk.Running())
	assert.Equal(t, 2, board.Fabric.InUse())

	board.Advance(periods(8))
	assert.Equal(t, uint64(16), board.GPIO.Toggles(5))
	assert.False(t, board.GPIO.Level(5))
	assert.Equal(t, uint64(8), board.ADC.Samples())
	assert.Equal(t, uint64(2), acq.Blocks())

	board.Advance(periods(1) / 2)
	assert.True(t, board.GPIO.Level(5))

	clk.Stop()
	assert.False(t, clk.Running())
	assert.Equal(t, 0, board.Fabric.InUse())
	board.Advance(periods(8))
	assert.Equal(t, uint64(8), board.ADC.Samples())
	require.NoError(t, clk.Start(4096))
	assert.Equal(t, 2, board.Fabric.InUse())
	acq.Stop()
}

func TestClockInitFailure(t *testing.T) {
	board := sim.NewBoard(constSource{})
	board.Fabric.MaxChannels = 1
	clk := board.ClockGenerator(5)
	err := clk.Start(4096)
	var initErr *afe.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "interconnect", initErr.Stage)
	assert.ErrorIs(t, err, afe.ErrNoChannel)
	assert.False(t, clk.Running())
	assert.Zero(t, board.Fabric.InUse())

	board.Fabric.MaxChannels = 2
	require.NoError(t, clk.Start(4096))
	assert.Equal(t, 2, board.Fabric.InUse())
	clk.Stop()

	err = sim.NewBoard(constSource{}).ClockGenerator(5).Start(0)
	assert.ErrorIs(t, err, afe.ErrInvalidRate)
}

func TestAcquiredSamples(t *testing.T) {
	sink := &blockSink{release: true}
	board, _, _ := startBoard(t, constSource{v: 0.15, i: -0.3}, 4, sink)
	board.Advance(periods(12))

	require.Len(t, sink.blocks, 3)
	for n, b := range sink.blocks {
		assert.Equal(t, uint64(n), b.Seq)
		assert.Equal(t, []int16{819, -1638, 819, -1638, 819, -1638, 819, -1638}, b.Samples)
	}
	assert.Zero(t, board.ADC.Lost())
}

func TestOverrunIsFatal(t *testing.T) {
	sink := &blockSink{}
	board, _, acq := startBoard(t, constSource{}, 4, sink)
	board.Advance(periods(4))
	require.Len(t, sink.blocks, 1)
	require.Empty(t, sink.faults)

	board.Advance(periods(12))
	require.Len(t, sink.blocks, 1)
	require.Len(t, sink.faults, 1)
	assert.ErrorIs(t, sink.faults[0], afe.ErrOverrun)
	assert.Equal(t, uint64(1), acq.Blocks())
}

// refusingADC accepts the initial buffers and refuses every later queue.
type refusingADC struct {
	done   func([]int16)
	queued [][]int16
	accept int
}

func (a *refusingADC) Init(cfg afe.ADCConfig, done func([]int16)) error {
	a.done = done
	return nil
}

func (a *refusingADC) Queue(buf []int16) error {
	if len(a.queued) >= a.accept {
		return errors.New("queue refused")
	}
	a.queued = append(a.queued, buf)
	return nil
}

func (a *refusingADC) SampleTask() afe.TaskAddr { return 0 }
func (a *refusingADC) Uninit()                  {}

func TestFailedRearmIsFatal(t *testing.T) {
	adc := &refusingADC{accept: 2}
	sink := &blockSink{release: true}
	acq := &afe.Acquirer{ADC: adc, Config: afe.DefaultADCConfig(), BlockSize: 4}
	acq.OnFault = sink.fault
	require.NoError(t, acq.Start(sink.handle))
	require.Len(t, adc.queued, 2)

	adc.done(adc.queued[0])
	require.Len(t, sink.faults, 1)
	assert.ErrorIs(t, sink.faults[0], afe.ErrOverrun)
	assert.Empty(t, sink.blocks)
	assert.Zero(t, acq.Blocks())

	adc.done(adc.queued[1])
	assert.Len(t, sink.faults, 1)
	assert.Empty(t, sink.blocks)
}

func TestReleaseInTime(t *testing.T) {
	sink := &blockSink{}
	board, _, acq := startBoard(t, constSource{}, 4, sink)
	for n := 0; n < 6; n++ {
		board.Advance(periods(4))
		require.Len(t, sink.blocks, n+1)
		sink.blocks[n].Release()
		sink.blocks[n].Release()
	}
	assert.Empty(t, sink.faults)
	assert.Equal(t, uint64(6), acq.Blocks())

	require.ErrorIs(t, acq.Start(sink.handle), afe.ErrAlreadyStarted)
}

func TestADCConfig(t *testing.T) {
	cfg := afe.DefaultADCConfig()
	assert.Equal(t, 0.75, cfg.ReferenceVolts())
	assert.Equal(t, 1.5, cfg.FullScale())
	assert.Equal(t, 3.0/16384, cfg.VoltsPerCode())
}
