// Package mqtt carries device packets over an MQTT broker.
//
// Topics, relative to the prefix from the broker URL path:
//
//	eda/<device>/meta    retained DeviceInfo (JSON), cleared by the will
//	eda/<device>/up      device to host packets
//	eda/<device>/down    host to device packets
//	eda/<device>/notify  host toggles notifications ("1" or "0")
package mqtt

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler is the callback when a message is received.
type Handler func(topic string, payload []byte)

// ConnectHandler is to handle connect/disconnect events.
type ConnectHandler func(*Queue)

// Queue multiplexes topic handlers over a single paho client.
// Each filter is subscribed on the broker once, however many handlers share it.
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	QoS          byte
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler

	lock sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is a handler registered on a topic filter.
type Subscription struct {
	Token paho.Token

	queue   *Queue
	filter  string
	handler Handler
}

// MatchTopic matches topic with a filter which may contain + and # wildcards.
func MatchTopic(topic, filter string) bool {
	levels, patterns := strings.Split(topic, "/"), strings.Split(filter, "/")
	for i, p := range patterns {
		switch {
		case p == "#" && i == len(patterns)-1:
			return true
		case i >= len(levels):
			return false
		case p != "+" && p != levels[i]:
			return false
		}
	}
	return len(levels) == len(patterns)
}

// ClientOptionsFromURL creates ClientOptions from a broker URL:
//
//	mqtt[s]://user:pass@host:port/prefix?client-id=id&qos=1&keepalive=30s
//
// ws and wss brokers are passed to paho as is.
// The path becomes the topic prefix, with a trailing slash.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	switch scheme {
	case "", "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	prefix := strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}

	opts := paho.NewClientOptions().
		AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(5 * time.Second)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	query := u.Query()
	if id := query.Get("client-id"); id != "" {
		opts.SetClientID(id)
	}
	if v := query.Get("keepalive"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, "", err
		}
		opts.SetKeepAlive(d)
	}
	return opts, prefix, nil
}

func qosFromURL(brokerURL string) (byte, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return 0, err
	}
	v := u.Query().Get("qos")
	if v == "" {
		return 0, nil
	}
	qos, err := strconv.ParseUint(v, 10, 8)
	if err != nil || qos > 2 {
		return 0, &url.Error{Op: "qos", URL: brokerURL, Err: strconv.ErrRange}
	}
	return byte(qos), nil
}

// NewQueue creates Queue.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix}
	options.SetOnConnectHandler(q.onConnect)
	options.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// Connect connects the client.
func (q *Queue) Connect() paho.Token {
	return q.Client.Connect()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(250)
	return nil
}

// Sub registers handler on a topic filter relative to TopicPrefix.
func (q *Queue) Sub(filter string, handler Handler) *Subscription {
	sub := &Subscription{queue: q, filter: filter, handler: handler}
	q.lock.Lock()
	if q.subs == nil {
		q.subs = make(map[string][]*Subscription)
	}
	first := len(q.subs[filter]) == 0
	q.subs[filter] = append(q.subs[filter], sub)
	q.lock.Unlock()

	if !first {
		sub.Token = &paho.DummyToken{}
		return sub
	}
	glog.V(2).Infof("SUB %q", q.TopicPrefix+filter)
	sub.Token = q.Client.Subscribe(q.TopicPrefix+filter, q.QoS, q.dispatch)
	return sub
}

// Pub publishes to a topic.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, q.QoS, false)
}

// PubWith publishes with QoS and retain settings.
func (q *Queue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, qos, retain, payload)
}

// Resubscribe subscribes all registered filters, used after a reconnect.
func (q *Queue) Resubscribe() paho.Token {
	q.lock.RLock()
	filters := make(map[string]byte, len(q.subs))
	for filter := range q.subs {
		filters[q.TopicPrefix+filter] = q.QoS
	}
	q.lock.RUnlock()
	if len(filters) == 0 {
		return &paho.DummyToken{}
	}
	glog.V(2).Infof("SUB %d topics", len(filters))
	return q.Client.SubscribeMultiple(filters, q.dispatch)
}

func (q *Queue) onConnect(paho.Client) {
	glog.Info("mqtt: connected")
	q.Resubscribe()
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

func (q *Queue) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("mqtt: connection lost: %v", err)
	if h := q.OnDisconnect; h != nil {
		h(q)
	}
}

func (q *Queue) handlers(topic string) (handlers []Handler) {
	q.lock.RLock()
	defer q.lock.RUnlock()
	for filter, subs := range q.subs {
		if filter != topic && !MatchTopic(topic, filter) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	return
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	topic, ok := strings.CutPrefix(msg.Topic(), q.TopicPrefix)
	if !ok {
		return
	}
	glog.V(4).Infof("RCV %q", topic)
	payload := msg.Payload()
	for _, h := range q.handlers(topic) {
		h(topic, payload)
	}
}

// Close removes the handler, the filter is unsubscribed with its last handler.
func (s *Subscription) Close() error {
	q := s.queue
	q.lock.Lock()
	subs, found := q.subs[s.filter], false
	for i, sub := range subs {
		if sub == s {
			subs, found = append(subs[:i:i], subs[i+1:]...), true
			break
		}
	}
	if !found {
		q.lock.Unlock()
		return nil
	}
	last := len(subs) == 0
	if last {
		delete(q.subs, s.filter)
	} else {
		q.subs[s.filter] = subs
	}
	q.lock.Unlock()
	if !last {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", s.filter)
	token := q.Client.Unsubscribe(q.TopicPrefix + s.filter)
	token.Wait()
	return token.Error()
}
