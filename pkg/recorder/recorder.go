// Package recorder stores host samples.
package recorder

import (
	"context"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/host"
)

// Sink records samples until closed.
type Sink interface {
	host.SampleSink
	io.Closer
}

// Multi records to every sink.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, s host.Sample) error {
	var errs fx.AggregatedError
	for _, sink := range m {
		errs.Add(sink.Record(ctx, s))
	}
	return errs.Aggregate()
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs fx.AggregatedError
	for _, sink := range m {
		errs.Add(sink.Close())
	}
	return errs.Aggregate()
}

// LogSink logs a summary of every sample.
type LogSink struct {
	// Level is the glog verbosity required for logging.
	Level glog.Level
}

// Record implements Sink.
func (l *LogSink) Record(ctx context.Context, s host.Sample) error {
	if !glog.V(l.Level) || len(s.Data) == 0 {
		return nil
	}
	freq := 0.0
	if len(s.Frequencies) > 0 {
		freq = s.Frequencies[0]
	}
	glog.Infof("%s #%d %.3fs: %gHz %.3fuS, circle (%.1f, %.1f) r %.1f",
		s.Device, s.Seq, s.Elapsed.Seconds(), freq, s.Conductance(0),
		s.Circle.X, s.Circle.Y, s.Circle.R)
	return nil
}

// Close implements Sink.
func (l *LogSink) Close() error {
	return nil
}
