package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Connector discovers devices and connects to them as a host.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
	qos         byte
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	qos, err := qosFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
		qos:             qos,
	}, nil
}

// ParseMeta decodes an announcement on a meta topic.
// An empty payload means the device is gone.
func ParseMeta(topic string, payload []byte) (info DeviceInfo, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[0] != "eda" || items[2] != TopicMeta || len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, &info); err != nil {
		glog.Warningf("mqtt: bad announcement on %s: %v", topic, err)
		return
	}
	if info.ID == "" {
		info.ID = items[1]
	}
	return info, true
}

// Discover collects the devices announced within the timeout.
func (c *Connector) Discover(ctx context.Context) (res []DeviceInfo, err error) {
	q := NewQueue(c.options, c.topicPrefix)
	token := q.Connect()
	token.Wait()
	if err = token.Error(); err != nil {
		return nil, err
	}
	defer q.Close()
	resCh := make(chan DeviceInfo, 16)
	sub := q.Sub(DeviceTopic("+", TopicMeta), func(topic string, payload []byte) {
		if info, ok := ParseMeta(topic, payload); ok {
			select {
			case resCh <- info:
			case <-time.After(time.Second):
			}
		}
	})
	defer sub.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Conn is a host session to a device.
type Conn struct {
	*ReadWriter
}

// Close closes the session and the broker connection.
func (c *Conn) Close() error {
	c.ReadWriter.Close()
	return c.Queue.Close()
}

// SetNotify asks the device to start or stop sending reports.
func (c *Conn) SetNotify(enabled bool) error {
	payload := []byte("0")
	if enabled {
		payload = []byte("1")
	}
	topic := strings.TrimSuffix(c.SubTopic, TopicUp) + TopicNotify
	token := c.Queue.PubWith(topic, payload, 1, false)
	token.Wait()
	return token.Error()
}

// Connect opens a host session to the device.
func (c *Connector) Connect(ctx context.Context, device string) (*Conn, error) {
	q := NewQueue(c.options, c.topicPrefix)
	q.QoS = c.qos
	conn := &Conn{ReadWriter: NewPacketReadWriter(q).ForHost(device).Start()}
	token := q.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
