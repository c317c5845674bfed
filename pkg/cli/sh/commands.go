package sh

import (
	"bytes"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/eda.go/pkg/host"
	"github.com/robotalks/eda.go/pkg/link/mqtt"
	"github.com/robotalks/eda.go/pkg/link/serial"
)

// SampleView is the JSON form of a Sample.
type SampleView struct {
	Device    string      `json:"device"`
	Seq       uint64      `json:"seq"`
	Time      float64     `json:"time"`
	Elapsed   float64     `json:"elapsed"`
	Impedance []PointView `json:"impedance"`
	Circle    host.Circle `json:"circle"`
}

// PointView is an impedance at a frequency.
type PointView struct {
	Frequency float64 `json:"freq,omitempty"`
	Re        float32 `json:"re"`
	Im        float32 `json:"im"`
}

// ViewOf converts a Sample.
func ViewOf(s host.Sample) SampleView {
	v := SampleView{
		Device:    s.Device,
		Seq:       s.Seq,
		Time:      float64(s.Time.UnixNano()) / 1e9,
		Elapsed:   s.Elapsed.Seconds(),
		Impedance: make([]PointView, len(s.Data)),
		Circle:    s.Circle,
	}
	for n, z := range s.Data {
		v.Impedance[n] = PointView{Re: real(z), Im: imag(z)}
		if n < len(s.Frequencies) {
			v.Impedance[n].Frequency = s.Frequencies[n]
		}
	}
	return v
}

// FormatSample prints a Sample as a table.
func FormatSample(s host.Sample) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s #%d at %s (%.3fs)\n", s.Device, s.Seq, s.Time.Format("15:04:05.000000"), s.Elapsed.Seconds())
	for n, z := range s.Data {
		freq := 0.0
		if n < len(s.Frequencies) {
			freq = s.Frequencies[n]
		}
		fmt.Fprintf(&w, "%6gHz %12.2f %12.2fj %10.3fuS\n", freq, real(z), imag(z), s.Conductance(n))
	}
	fmt.Fprintf(&w, "circle (%.2f, %.2f) r %.2f", s.Circle.X, s.Circle.Y, s.Circle.R)
	return w.String()
}

var (
	// DevicesCmd discovers devices on the MQTT broker.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList, err := s.DiscoverDevices()
			if err != nil {
				c.Err(err)
				return
			}
			if infoList == nil {
				// in case infoList is nil, make it empty slice.
				infoList = []mqtt.DeviceInfo{}
			}
			s.Print(c, infoList, func() string {
				if len(infoList) == 0 {
					return "No devices found"
				}
				var w bytes.Buffer
				for n, info := range infoList {
					if n > 0 {
						w.WriteByte('\n')
					}
					w.WriteString(FormatDevice(info))
				}
				return w.String()
			})
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			ShellFrom(c).Print(c, ports, func() string {
				if len(ports) == 0 {
					return "No serial ports found"
				}
				var w bytes.Buffer
				for n, p := range ports {
					if n > 0 {
						w.WriteByte('\n')
					}
					w.WriteString("serial://" + p)
				}
				return w.String()
			})
		},
	}

	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL|DEVICE]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var arg string
			if len(c.Args) > 0 {
				arg = c.Args[0]
			} else if s.isMQTT() {
				info, err := s.SelectDevice()
				if err != nil {
					c.Err(err)
					return
				}
				if info == nil {
					c.Err(fmt.Errorf("no device discovered"))
					return
				}
				arg = info.ID
			}
			url, device := s.DeviceURL(arg), ""
			if arg != "" && url != arg {
				device = arg
			}
			if err := s.Connect(url, device); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// SyncCmd sends the host time to the device.
	SyncCmd = ishell.Cmd{
		Name: "sync",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.Monitor.SyncTime(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StartCmd starts a new measurement.
	StartCmd = ishell.Cmd{
		Name: "start",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.Monitor.Start(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StopCmd stops notifications.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.Monitor.Stop(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LastCmd prints the latest sample.
	LastCmd = ishell.Cmd{
		Name: "last",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			sample, ok := s.Session.Monitor.Last()
			if !ok {
				c.Err(fmt.Errorf("no sample received"))
				return
			}
			s.Print(c, ViewOf(sample), func() string { return FormatSample(sample) })
		}),
	}

	// StatsCmd prints the monitor counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Session.Monitor.Stats()
			s.Print(c, stats, func() string {
				text := fmt.Sprintf("reports %d, decode errors %d, syncs %d, sink errors %d",
					stats.Reports, stats.DecodeErrors, stats.Syncs, stats.SinkErrors)
				if err := s.Session.Err(); err != nil {
					text += fmt.Sprintf("\nsession ended: %v", err)
				}
				return text
			})
		}),
	}
)
