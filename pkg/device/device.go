// Package device assembles the simulated sensor: front end, impedance
// extraction, time base and the link serving reports.
package device

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/afe"
	"github.com/robotalks/eda.go/pkg/afe/sim"
	"github.com/robotalks/eda.go/pkg/calendar"
	"github.com/robotalks/eda.go/pkg/config"
	"github.com/robotalks/eda.go/pkg/dsp"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/link/mqtt"
	"github.com/robotalks/eda.go/pkg/link/transport"
	"github.com/robotalks/eda.go/pkg/pipeline"
)

// Device is a running sensor.
type Device struct {
	Config       *config.Config
	Load         *sim.RCLoad
	Board        *sim.Board
	Clock        *afe.ClockGenerator
	Acquirer     *afe.Acquirer
	Extractor    *dsp.Extractor
	Calendar     *calendar.Calendar
	Loop         *fx.Loop
	Orchestrator *pipeline.Orchestrator
	Endpoint     *link.Endpoint
}

// New assembles a device, the link listener is opened right away.
func New(conf *config.Config) (*Device, error) {
	d := &Device{Config: conf}
	ext, err := dsp.NewExtractor(conf.DSP, nil)
	if err != nil {
		return nil, err
	}
	d.Extractor = ext

	d.Load = sim.NewRCLoad(conf.AFE.LoadR, conf.AFE.LoadC, conf.DSP)
	d.Load.Series = conf.AFE.LoadSeries
	d.Load.SetFrequencies(conf.DSP.Frequencies)
	d.Board = sim.NewBoard(d.Load)
	d.Board.ADC.Noise = conf.AFE.Noise
	d.Board.Step = conf.AFE.Step
	d.Clock = d.Board.ClockGenerator(conf.AFE.Pin)
	d.Acquirer = d.Board.Acquirer(conf.DSP.BlockSize)

	d.Calendar = calendar.New(d.Board.Counter)
	d.Calendar.Init()

	d.Loop = fx.NewLoop(conf.Link.QueueSize)
	d.Orchestrator = pipeline.New(d.Extractor, d.Calendar, link.NewStreamer(), d.Loop)
	d.Acquirer.OnFault = d.Orchestrator.Fault
	d.Loop.Add(d.Orchestrator)

	ln, err := transport.Listen(conf.Link.URL, transport.Options{
		MTU: conf.Link.MTU,
		Device: mqtt.DeviceInfo{
			ID:          conf.Device.ID,
			Name:        conf.Device.Name,
			SampleRate:  conf.DSP.SampleRate,
			Frequencies: conf.DSP.Frequencies,
		},
	})
	if err != nil {
		return nil, err
	}
	d.Endpoint = &link.Endpoint{Listener: ln, Handler: d.Orchestrator, TxDepth: conf.Link.TxDepth}
	return d, nil
}

// Addr returns the address of the link listener.
func (d *Device) Addr() string {
	return d.Endpoint.Listener.Addr()
}

// Name implements Named.
func (d *Device) Name() string {
	return "device"
}

// Run starts acquisition and runs until ctx is done or acquisition fails.
func (d *Device) Run(ctx context.Context) error {
	if err := d.Acquirer.Start(d.Orchestrator.BlockReady); err != nil {
		link.Close(d.Endpoint.Listener)
		return err
	}
	defer d.Acquirer.Stop()
	if err := d.Clock.Start(uint32(d.Config.DSP.SampleRate)); err != nil {
		link.Close(d.Endpoint.Listener)
		return err
	}
	defer d.Clock.Stop()

	glog.Infof("device %s: serving %s", d.Config.Device.ID, d.Addr())
	d.Loop.AddRunnable(d.Board, d.Endpoint)
	return d.Loop.Run(ctx)
}
