package sim

import (
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/afe"
	"github.com/robotalks/eda.go/pkg/dsp"
)

func TestFabricRouting(t *testing.T) {
	f := NewFabric()
	f.MaxChannels = 2
	var calls []string
	ev := f.NewEvent()
	t1 := f.NewTask(func() { calls = append(calls, "t1") })
	t2 := f.NewTask(func() { calls = append(calls, "t2") })
	t3 := f.NewTask(func() { calls = append(calls, "t3") })

	ch, err := f.Alloc()
	require.NoError(t, err)
	require.ErrorIs(t, f.Fork(ch, t2), errUnassigned)
	require.ErrorIs(t, f.Enable(ch), errUnassigned)
	require.NoError(t, f.Assign(ch, ev, t1))
	require.NoError(t, f.Fork(ch, t2))
	require.ErrorIs(t, f.Fork(ch, t3), errForked)

	f.Signal(ev)
	assert.Empty(t, calls)
	require.NoError(t, f.Enable(ch))
	f.Signal(ev)
	f.Signal(f.NewEvent())
	assert.Equal(t, []string{"t1", "t2"}, calls)

	_, err = f.Alloc()
	require.NoError(t, err)
	_, err = f.Alloc()
	require.ErrorIs(t, err, afe.ErrNoChannel)
	require.ErrorIs(t, f.Enable(afe.Channel(7)), errBadChannel)

	f.FreeAll()
	assert.Zero(t, f.InUse())
}

func TestTimerCompare(t *testing.T) {
	f := NewFabric()
	tm := NewTimer(f)
	var seq []int
	for cc := 0; cc < 2; cc++ {
		cc := cc
		ch, err := f.Alloc()
		require.NoError(t, err)
		require.NoError(t, f.Assign(ch, tm.CompareEvent(cc), f.NewTask(func() { seq = append(seq, cc) })))
		require.NoError(t, f.Enable(ch))
	}
	require.NoError(t, tm.Init(1000000))
	require.NoError(t, tm.Compare(0, 10, true))
	require.NoError(t, tm.Compare(1, 5, false))
	require.Error(t, tm.Compare(1, 1<<16, false))

	tm.Advance(100)
	assert.Empty(t, seq)
	tm.Enable()
	tm.Advance(4)
	assert.Empty(t, seq)
	tm.Advance(1)
	assert.Equal(t, []int{1}, seq)
	tm.Advance(25)
	assert.Equal(t, []int{1, 0, 1, 0, 1, 0}, seq)
	assert.Equal(t, uint32(1000000), tm.Frequency())
}

func TestTimerWrapWithoutClear(t *testing.T) {
	f := NewFabric()
	tm := NewTimer(f)
	tm.Bits = 4
	count := 0
	ch, _ := f.Alloc()
	require.NoError(t, f.Assign(ch, tm.CompareEvent(0), f.NewTask(func() { count++ })))
	require.NoError(t, f.Enable(ch))
	require.NoError(t, tm.Init(1000000))
	require.NoError(t, tm.Compare(0, 3, false))
	tm.Enable()
	tm.Advance(16*3 + 2)
	assert.Equal(t, 3, count)
	tm.Advance(1)
	assert.Equal(t, 4, count)
}

func TestRCLoadImpedance(t *testing.T) {
	l := NewRCLoad(100e3, 10e-9, dsp.DefaultConfig())
	assert.Equal(t, complex(100e3, 0), l.Impedance(0))
	z := l.Impedance(1 / (2 * math.Pi * 100e3 * 10e-9))
	assert.InDelta(t, 50e3, real(z), 1e-6)
	assert.InDelta(t, -50e3, imag(z), 1e-6)

	dst := make([]float64, 2)
	l.Sample(0, dst)
	assert.Zero(t, dst[1])
}

// The extracted impedance of a simulated load matches the model.
func TestBoardMeasuresLoad(t *testing.T) {
	cfg := dsp.DefaultConfig()
	load := NewRCLoad(100e3, 10e-9, cfg)
	board := NewBoard(load)
	ext, err := dsp.NewExtractor(cfg, nil)
	require.NoError(t, err)

	out := make([]complex64, len(cfg.Frequencies))
	var extracted int
	acq := board.Acquirer(cfg.BlockSize)
	require.NoError(t, acq.Start(func(b *afe.RawSampleBlock) {
		defer b.Release()
		require.NoError(t, ext.Extract(b.Samples, out))
		extracted++
	}))
	require.NoError(t, board.ClockGenerator(5).Start(uint32(cfg.SampleRate)))

	board.Advance(time.Duration(3*cfg.BlockSize*244) * time.Microsecond)
	require.Equal(t, 3, extracted)
	assert.Equal(t, time.Duration(3*cfg.BlockSize*244)*time.Microsecond, board.Elapsed())

	for n, f := range cfg.Frequencies {
		expected := load.Impedance(f)
		tolerance := cmplx.Abs(expected) * 0.01
		assert.InDelta(t, real(expected), real(out[n]), tolerance, "%g Hz", f)
		assert.InDelta(t, imag(expected), imag(out[n]), tolerance, "%g Hz", f)
	}
}
