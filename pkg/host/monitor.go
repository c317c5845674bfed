// Package host receives impedance reports from a device link and keeps the
// device time base synchronized.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/framing"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/msgs"
)

// SampleSink consumes decoded samples.
type SampleSink interface {
	Record(ctx context.Context, s Sample) error
}

// SampleSinkFunc is the func form of SampleSink.
type SampleSinkFunc func(ctx context.Context, s Sample) error

// Record implements SampleSink.
func (f SampleSinkFunc) Record(ctx context.Context, s Sample) error {
	return f(ctx, s)
}

// NotifyController is implemented by links where the host subscribes to
// reports explicitly.
type NotifyController interface {
	SetNotify(enabled bool) error
}

// MonitorStats are the counters of a Monitor.
type MonitorStats struct {
	Reports      uint64
	DecodeErrors uint64
	Syncs        uint64
	SinkErrors   uint64
}

// Monitor reads reports from a device link.
type Monitor struct {
	Conn        link.PacketReadWriter
	Device      string
	Frequencies []float64
	// SyncInterval resends the time periodically, 0 only syncs on start.
	SyncInterval time.Duration
	// Now is the host clock.
	Now func() time.Time

	parser *framing.Parser

	lock  sync.RWMutex
	sinks []SampleSink
	start time.Time
	last  *Sample
	seq   uint64
	stats MonitorStats

	writeLock sync.Mutex
}

// NewMonitor creates a Monitor on conn.
func NewMonitor(conn link.PacketReadWriter, device string, freqs []float64) *Monitor {
	return &Monitor{
		Conn:        conn,
		Device:      device,
		Frequencies: freqs,
		Now:         time.Now,
		parser:      framing.NewParser(msgs.KindImpedanceReport.MaxFrameSize()),
	}
}

// Name implements Named.
func (m *Monitor) Name() string {
	return "monitor"
}

// AddSink adds sinks receiving every sample.
func (m *Monitor) AddSink(sinks ...SampleSink) *Monitor {
	m.lock.Lock()
	m.sinks = append(m.sinks, sinks...)
	m.lock.Unlock()
	return m
}

// RemoveSink removes a sink added before.
func (m *Monitor) RemoveSink(sink SampleSink) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for n, s := range m.sinks {
		if s == sink {
			m.sinks = append(m.sinks[:n], m.sinks[n+1:]...)
			return
		}
	}
}

// Start begins a measurement: the elapsed time of samples restarts, the
// device time is synchronized and notifications are enabled.
func (m *Monitor) Start() error {
	m.lock.Lock()
	m.start, m.last = m.Now(), nil
	m.lock.Unlock()
	if err := m.SyncTime(); err != nil {
		return err
	}
	if nc, ok := m.Conn.(NotifyController); ok {
		return nc.SetNotify(true)
	}
	return nil
}

// Stop disables notifications where the link supports it.
func (m *Monitor) Stop() error {
	if nc, ok := m.Conn.(NotifyController); ok {
		return nc.SetNotify(false)
	}
	return nil
}

// SyncTime sends the host time to the device.
func (m *Monitor) SyncTime() error {
	frame, err := msgs.Encode(msgs.TimeSyncFrom(m.Now()))
	if err != nil {
		return err
	}
	mtu := len(frame)
	if p, ok := m.Conn.(link.MTUProvider); ok && p.MTU() > 0 {
		mtu = p.MTU()
	}
	m.writeLock.Lock()
	defer m.writeLock.Unlock()
	for len(frame) > 0 {
		n := mtu
		if n > len(frame) {
			n = len(frame)
		}
		if err = m.Conn.WritePacket(frame[:n]); err != nil {
			return err
		}
		frame = frame[n:]
	}
	m.lock.Lock()
	m.stats.Syncs++
	m.lock.Unlock()
	glog.V(2).Infof("host: time synced on %s", m.Device)
	return nil
}

// Last returns the latest sample.
func (m *Monitor) Last() (Sample, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.last == nil {
		return Sample{}, false
	}
	return *m.last, true
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() MonitorStats {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.stats
}

// Run implements Runnable.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}
	if m.SyncInterval > 0 {
		go m.syncPeriodically(ctx)
	}
	return fx.RunWithContextCancel(ctx, func() { link.Close(m.Conn) }, func() error {
		for {
			pkt, err := m.Conn.ReadPacket()
			if err != nil {
				return err
			}
			m.HandlePacket(ctx, pkt)
		}
	})
}

func (m *Monitor) syncPeriodically(ctx context.Context) {
	ticker := time.NewTicker(m.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SyncTime(); err != nil {
				glog.Warningf("host: sync time: %v", err)
			}
		}
	}
}

// HandlePacket reassembles and decodes inbound data.
// It must not be called concurrently.
func (m *Monitor) HandlePacket(ctx context.Context, pkt []byte) {
	dropped := m.parser.Feed(pkt, func(frame []byte) {
		report, err := msgs.DecodeImpedanceReport(frame)
		if err != nil {
			m.lock.Lock()
			m.stats.DecodeErrors++
			m.lock.Unlock()
			glog.Errorf("host: decode report: %v", err)
			return
		}
		m.deliver(ctx, m.sampleOf(report))
	})
	if dropped > 0 {
		m.lock.Lock()
		m.stats.DecodeErrors += uint64(dropped)
		m.lock.Unlock()
		glog.Errorf("host: %d oversized frames discarded", dropped)
	}
}

func (m *Monitor) sampleOf(report *msgs.ImpedanceReport) Sample {
	s := Sample{
		Device:      m.Device,
		Frequencies: m.Frequencies,
		Data:        report.Values(),
	}
	if report.Timestamp != nil {
		s.Time = report.Timestamp.AsTime()
	} else {
		s.Time = m.Now()
	}
	if c, err := FitCircle(s.Data); err == nil {
		s.Circle = c
	} else {
		glog.V(3).Infof("host: circle fit: %v", err)
	}
	return s
}

func (m *Monitor) deliver(ctx context.Context, s Sample) {
	m.lock.Lock()
	s.Seq = m.seq
	m.seq++
	if !m.start.IsZero() {
		s.Elapsed = s.Time.Sub(m.start)
	}
	m.last = &s
	m.stats.Reports++
	sinks := append([]SampleSink(nil), m.sinks...)
	m.lock.Unlock()

	for _, sink := range sinks {
		if err := sink.Record(ctx, s); err != nil {
			m.lock.Lock()
			m.stats.SinkErrors++
			m.lock.Unlock()
			glog.Errorf("host: record sample %d: %v", s.Seq, err)
		}
	}
}
