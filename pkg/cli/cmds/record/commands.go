package record

import (
	"context"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/eda.go/pkg/cli/sh"
	"github.com/robotalks/eda.go/pkg/host"
	"github.com/robotalks/eda.go/pkg/recorder"
)

const recorderKey = "$recorder"

func activeSink(c *ishell.Context) recorder.Sink {
	sink, _ := c.Get(recorderKey).(recorder.Sink)
	return sink
}

// StopRecording closes the active recording.
func StopRecording(c *ishell.Context) error {
	sink := activeSink(c)
	if sink == nil {
		return nil
	}
	if s := sh.ShellFrom(c).Session; s != nil {
		s.Monitor.RemoveSink(sink)
	}
	c.Set(recorderKey, nil)
	return sink.Close()
}

var (
	// RecordCmd records samples to a sink.
	RecordCmd = ishell.Cmd{
		Name:    "record",
		Aliases: []string{"rec"},
		Help:    "[SINK|stop], SINK is csv:<path>, log[:level] or clickhouse://host:port/db",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) > 0 && c.Args[0] == "stop" {
				if err := StopRecording(c); err != nil {
					c.Err(err)
				}
				return
			}
			s := sh.ShellFrom(c)
			target := "csv:" + recorder.FileName(s.Session.Monitor.Device, host.Sample{Time: time.Now()})
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if err := StopRecording(c); err != nil {
				c.Err(err)
				return
			}
			sink, err := recorder.Open(context.TODO(), target)
			if err != nil {
				c.Err(err)
				return
			}
			s.Session.Monitor.AddSink(sink)
			c.Set(recorderKey, sink)
			c.Printf("Recording to %s\n", target)
		}),
	}

	// FitCmd fits a circle through the latest sample.
	FitCmd = ishell.Cmd{
		Name: "fit",
		Help: "[POINTS]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			sample, ok := s.Session.Monitor.Last()
			if !ok {
				c.Err(fmt.Errorf("no sample received"))
				return
			}
			circle, err := host.FitCircle(sample.Data)
			if err != nil {
				c.Err(err)
				return
			}
			var points int
			if len(c.Args) > 0 {
				fmt.Sscanf(c.Args[0], "%d", &points)
			}
			type view struct {
				host.Circle
				Arc [][2]float64 `json:"arc,omitempty"`
			}
			v := view{Circle: circle}
			if points > 0 {
				for _, p := range circle.Arc(points) {
					v.Arc = append(v.Arc, [2]float64{real(p), imag(p)})
				}
			}
			s.Print(c, v, func() string {
				text := fmt.Sprintf("center (%.2f, %.2f) radius %.2f", circle.X, circle.Y, circle.R)
				for _, p := range v.Arc {
					text += fmt.Sprintf("\n%.2f %.2f", p[0], p[1])
				}
				return text
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&RecordCmd,
		&FitCmd,
	)
}
