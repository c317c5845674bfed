package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/eda.go/pkg/link"
)

// Topic names under eda/<device>/.
const (
	TopicMeta   = "meta"
	TopicUp     = "up"
	TopicDown   = "down"
	TopicNotify = "notify"
)

// DeviceTopic returns the topic of a device.
func DeviceTopic(device, name string) string {
	return "eda/" + device + "/" + name
}

// DefaultMTU is the packet size used over MQTT.
const DefaultMTU = 244

// ReadWriter implements PacketReadWriter over a pair of topics.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
	notifyCh chan bool
	subs     []*Subscription
	lock     sync.Mutex
	closed   bool
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{Queue: q, packetCh: make(chan []byte, 16)}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForDevice sets the topics of the device side, and accepts notification
// toggles from the host.
func (p *ReadWriter) ForDevice(device string) *ReadWriter {
	p.notifyCh = make(chan bool, 1)
	return p.WithTopics(DeviceTopic(device, TopicDown), DeviceTopic(device, TopicUp))
}

// ForHost sets the topics of the host side.
func (p *ReadWriter) ForHost(device string) *ReadWriter {
	return p.WithTopics(DeviceTopic(device, TopicUp), DeviceTopic(device, TopicDown))
}

// Start subscribes the topics.
func (p *ReadWriter) Start() *ReadWriter {
	p.subs = append(p.subs, p.Queue.Sub(p.SubTopic, p.handlePacket))
	if p.notifyCh != nil {
		notifyTopic := p.SubTopic[:len(p.SubTopic)-len(TopicDown)] + TopicNotify
		p.subs = append(p.subs, p.Queue.Sub(notifyTopic, p.handleNotify))
	}
	return p
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	pkt, ok := <-p.packetCh
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// MTU implements link.MTUProvider.
func (p *ReadWriter) MTU() int {
	return DefaultMTU
}

// Notifications implements link.NotifySource on the device side.
func (p *ReadWriter) Notifications() <-chan bool {
	return p.notifyCh
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, sub := range p.subs {
		sub.Close()
	}
	close(p.packetCh)
	return nil
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	p.Start()
	defer p.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (p *ReadWriter) handlePacket(_ string, payload []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.closed {
		p.packetCh <- append([]byte(nil), payload...)
	}
}

func (p *ReadWriter) handleNotify(_ string, payload []byte) {
	enabled := len(payload) > 0 && payload[0] == '1'
	select {
	case p.notifyCh <- enabled:
	default:
		// keep the latest state
		select {
		case <-p.notifyCh:
		default:
		}
		p.notifyCh <- enabled
	}
}

var _ link.PacketReadWriter = &ReadWriter{}
