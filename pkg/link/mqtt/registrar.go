package mqtt

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/link"
)

// DeviceInfo is announced by a device.
type DeviceInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	SampleRate  float64   `json:"sample_rate,omitempty"`
	Frequencies []float64 `json:"frequencies,omitempty"`
}

// Registrar announces a device on the broker and serves its session.
// It implements link.Listener: Accept returns the session once connected.
type Registrar struct {
	Queue *Queue
	Info  DeviceInfo

	metaJSON []byte
	rw       *ReadWriter
	sessions chan link.PacketReadWriter
	closed   chan struct{}
	once     sync.Once
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info DeviceInfo) (*Registrar, error) {
	meta, err := json.Marshal(&info)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	qos, err := qosFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	metaTopic := topicPrefix + DeviceTopic(info.ID, TopicMeta)
	opts.SetBinaryWill(metaTopic, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("eda:" + info.ID)
	}
	r := &Registrar{
		Queue:    NewQueue(opts, topicPrefix),
		Info:     info,
		metaJSON: meta,
		sessions: make(chan link.PacketReadWriter, 1),
		closed:   make(chan struct{}),
	}
	r.Queue.QoS = qos
	r.rw = NewPacketReadWriter(r.Queue).ForDevice(info.ID).Start()
	r.Queue.OnConnect = func(*Queue) { r.onConnected() }
	r.Queue.Connect()
	return r, nil
}

// Accept implements link.Listener.
func (r *Registrar) Accept() (link.PacketReadWriter, error) {
	select {
	case rw := <-r.sessions:
		return rw, nil
	case <-r.closed:
		return nil, link.ErrClosed
	}
}

// Addr implements link.Listener.
func (r *Registrar) Addr() string {
	return "mqtt:" + r.Queue.TopicPrefix + DeviceTopic(r.Info.ID, "")
}

// Close implements io.Closer. The announcement is cleared.
func (r *Registrar) Close() error {
	r.once.Do(func() {
		close(r.closed)
		r.Queue.PubWith(DeviceTopic(r.Info.ID, TopicMeta), nil, 1, true).Wait()
		r.rw.Close()
		r.Queue.Close()
	})
	return nil
}

func (r *Registrar) onConnected() {
	glog.Infof("mqtt: announcing %s", r.Info.ID)
	r.Queue.PubWith(DeviceTopic(r.Info.ID, TopicMeta), r.metaJSON, 1, true)
	select {
	case r.sessions <- r.rw:
	default:
	}
}
