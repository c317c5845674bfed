package calendar

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCalendar() (*Calendar, *SimCounter) {
	counter := NewSimCounter(DefaultBits, DefaultShift)
	cal := New(counter)
	cal.Init()
	return cal, counter
}

func TestInit(t *testing.T) {
	cal, counter := newTestCalendar()
	sec, us := cal.Get()
	require.Zero(t, sec)
	require.Zero(t, us)
	require.Equal(t, uint64(4096), cal.WrapSeconds())
	require.Equal(t, 244140*time.Nanosecond, cal.TickPeriod())

	counter.Advance(4096 + 2048)
	sec, us = cal.Get()
	require.Equal(t, uint64(1), sec)
	require.Equal(t, uint32(500000), us)
}

func TestMonotonicAcrossOverflow(t *testing.T) {
	cal, counter := newTestCalendar()
	require.NoError(t, cal.Set(1000, 0))

	const step = 1 << 20
	wrap := uint64(1) << DefaultBits
	var lastSec uint64
	var lastUs uint32
	var elapsed uint64
	for elapsed < 2*wrap+step {
		counter.Advance(step)
		elapsed += step
		sec, us := cal.Get()
		require.True(t, sec > lastSec || (sec == lastSec && us >= lastUs),
			"time went backward: %d.%06d -> %d.%06d", lastSec, lastUs, sec, us)
		require.Equal(t, 1000+elapsed>>DefaultShift, sec)
		lastSec, lastUs = sec, us
	}
	require.True(t, lastSec >= 1000+2*cal.WrapSeconds())
}

func TestExactAdvance(t *testing.T) {
	cal, counter := newTestCalendar()
	require.NoError(t, cal.Set(1000, 0))
	testCases := []struct {
		ticks uint64
		sec   uint64
		us    uint32
	}{
		{1, 1000, 244},
		{4095, 1001, 0},
		{1 << 23, 3049, 0},
		{1 << 23, 5097, 0},
		{1024, 5097, 250000},
	}
	for _, tc := range testCases {
		counter.Advance(tc.ticks)
		sec, us := cal.Get()
		require.Equal(t, tc.sec, sec)
		require.Equal(t, tc.us, us)
	}
}

func TestSetRoundTrip(t *testing.T) {
	testCases := []struct {
		sec uint64
		us  uint32
	}{
		{1700000000, 500000},
		{1700000000, 0},
		{1700000000, 999999},
		{0, 123},
		{42, 244},
	}
	tick := uint32(time.Second >> DefaultShift / time.Microsecond)
	for _, tc := range testCases {
		cal, counter := newTestCalendar()
		counter.Advance(123456)
		require.NoError(t, cal.Set(tc.sec, tc.us))
		sec, us := cal.Get()
		got := int64(sec)*1000000 + int64(us)
		want := int64(tc.sec)*1000000 + int64(tc.us)
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		require.True(t, diff <= int64(tick), "set %d.%06d got %d.%06d", tc.sec, tc.us, sec, us)
	}
}

func TestSetInvalid(t *testing.T) {
	cal, _ := newTestCalendar()
	require.Equal(t, ErrInvalidTime, cal.Set(1, 1000000))
}

func TestSetTimeAndNow(t *testing.T) {
	cal, counter := newTestCalendar()
	ref := time.Unix(1700000000, 250000000)
	require.NoError(t, cal.SetTime(ref))
	counter.AdvanceDuration(1500 * time.Millisecond)
	require.Equal(t, time.Unix(1700000001, 750000000), cal.Now())
}

func TestStoppedCounter(t *testing.T) {
	cal, counter := newTestCalendar()
	counter.Stop()
	counter.Advance(10000)
	sec, us := cal.Get()
	require.Zero(t, sec)
	require.Zero(t, us)
}

func TestConcurrentGetDuringOverflow(t *testing.T) {
	cal, counter := newTestCalendar()
	require.NoError(t, cal.Set(10, 0))
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastSec uint64
		var lastUs uint32
		for {
			select {
			case <-stop:
				return
			default:
			}
			sec, us := cal.Get()
			if sec < lastSec || (sec == lastSec && us < lastUs) {
				t.Errorf("time went backward: %d.%06d -> %d.%06d", lastSec, lastUs, sec, us)
				return
			}
			lastSec, lastUs = sec, us
		}
	}()
	for i := 0; i < 64; i++ {
		counter.Advance(1 << 21)
	}
	close(stop)
	wg.Wait()
	sec, _ := cal.Get()
	require.Equal(t, uint64(10+8*4096), sec)
}

func TestClockCounter(t *testing.T) {
	now := time.Unix(0, 0)
	counter := NewClockCounter(8, 4)
	counter.now = func() time.Time { return now }
	var wraps int
	counter.OnOverflow(func() { wraps++ })
	counter.Clear()
	counter.Start()

	now = now.Add(time.Second)
	require.Equal(t, uint32(16), counter.Value())
	now = now.Add(16 * time.Second)
	require.Equal(t, uint32(16), counter.Value())
	require.Equal(t, 1, wraps)

	counter.Stop()
	now = now.Add(time.Hour)
	require.Equal(t, uint32(16), counter.Value())
	counter.Start()
	now = now.Add(time.Second / 2)
	require.Equal(t, uint32(24), counter.Value())
	require.Equal(t, 1, wraps)
}
