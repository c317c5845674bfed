package device

import (
	"context"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/config"
	"github.com/robotalks/eda.go/pkg/host"
	"github.com/robotalks/eda.go/pkg/link/transport"
)

func TestDeviceServesReports(t *testing.T) {
	conf := config.NewConfig()
	conf.Device.ID = "dev1"
	conf.Link.URL = "tcp://127.0.0.1:0"
	conf.AFE.Step = 5 * time.Millisecond
	d, err := New(conf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	conn, err := transport.Dial(ctx, d.Addr())
	require.NoError(t, err)
	m := host.NewMonitor(conn, "dev1", conf.DSP.Frequencies)
	samples := make(chan host.Sample, 16)
	m.AddSink(host.SampleSinkFunc(func(ctx context.Context, s host.Sample) error {
		select {
		case samples <- s:
		default:
		}
		return nil
	}))
	monCtx, monCancel := context.WithCancel(ctx)
	monDone := make(chan error, 1)
	go func() { monDone <- m.Run(monCtx) }()

	var last host.Sample
	timeout := time.After(10 * time.Second)
	for n := 0; n < 4; n++ {
		select {
		case last = <-samples:
		case <-timeout:
			t.Fatalf("timed out after %d samples", n)
		}
	}
	assert.WithinDuration(t, time.Now(), last.Time, 2*time.Second)
	for n, f := range conf.DSP.Frequencies {
		expected := d.Load.Impedance(f)
		tolerance := cmplx.Abs(expected) * 0.02
		assert.InDelta(t, real(expected), real(last.Data[n]), tolerance, "%g Hz", f)
		assert.InDelta(t, imag(expected), imag(last.Data[n]), tolerance, "%g Hz", f)
	}
	assert.InDelta(t, conf.AFE.LoadSeries+conf.AFE.LoadR/2, last.Circle.X, conf.AFE.LoadR*0.02)
	assert.InDelta(t, conf.AFE.LoadR/2, last.Circle.R, conf.AFE.LoadR*0.02)

	stats := d.Orchestrator.Stats()
	assert.Equal(t, uint64(1), stats.TimeSyncs)
	assert.Zero(t, stats.DecodeErrors)

	monCancel()
	<-monDone
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDeviceConfigErrors(t *testing.T) {
	conf := config.NewConfig()
	conf.DSP.Frequencies = []float64{13.3}
	_, err := New(conf)
	assert.Error(t, err)

	conf = config.NewConfig()
	conf.Link.URL = "ble://dev"
	_, err = New(conf)
	assert.Error(t, err)
}
