// Package transport opens links by URL.
//
//	tcp://host:port
//	serial:///dev/ttyUSB0?baud=115200
//	ws://host:port/path
//	mqtt://[user:pass@]broker:port/prefix?device=ID
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/link/mqtt"
	"github.com/robotalks/eda.go/pkg/link/serial"
	"github.com/robotalks/eda.go/pkg/link/stream"
	"github.com/robotalks/eda.go/pkg/link/websocket"
)

// Options complements the URL.
type Options struct {
	// Device is announced by device side MQTT links.
	Device mqtt.DeviceInfo
	// MTU of TCP links.
	MTU int
}

// UnsupportedSchemeError indicates an unknown URL scheme.
type UnsupportedSchemeError struct {
	Scheme string
}

// Error implements error.
func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported link scheme %q", e.Scheme)
}

func serialPort(u *url.URL) (string, int, error) {
	name := u.Path
	if name == "" {
		name = u.Opaque
	}
	if u.Host != "" {
		name = u.Host + name
	}
	baud := serial.DefaultBaudRate
	if s := u.Query().Get("baud"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", 0, fmt.Errorf("invalid baud rate %q: %w", s, err)
		}
		baud = n
	}
	return name, baud, nil
}

func brokerURL(u *url.URL) (string, string) {
	q := u.Query()
	device := q.Get("device")
	q.Del("device")
	b := *u
	b.RawQuery = q.Encode()
	return b.String(), device
}

// Listen creates the device side Listener of the URL.
func Listen(rawURL string, opts Options) (link.Listener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	var ln link.Listener
	switch u.Scheme {
	case "tcp":
		var l *stream.Listener
		if l, err = stream.Listen(u.Host, opts.MTU); err == nil {
			ln = l
		}
	case "serial":
		name, baud, perr := serialPort(u)
		if perr != nil {
			return nil, perr
		}
		var l *serial.Listener
		if l, err = serial.Listen(name, baud); err == nil {
			ln = l
		}
	case "ws":
		var l *websocket.Listener
		if l, err = websocket.Listen(u.Host, u.Path); err == nil {
			ln = l
		}
	case "mqtt", "mqtts":
		broker, device := brokerURL(u)
		info := opts.Device
		if device != "" {
			info.ID = device
		}
		var l *mqtt.Registrar
		if l, err = mqtt.NewRegistrar(broker, info); err == nil {
			ln = l
		}
	default:
		return nil, &UnsupportedSchemeError{Scheme: u.Scheme}
	}
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Dial opens the host side link of the URL.
func Dial(ctx context.Context, rawURL string) (link.PacketReadWriter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	var rw link.PacketReadWriter
	switch u.Scheme {
	case "tcp":
		var conn *stream.ReadWriter
		if conn, err = stream.Dial(u.Host); err == nil {
			rw = conn
		}
	case "serial":
		name, baud, perr := serialPort(u)
		if perr != nil {
			return nil, perr
		}
		var conn *stream.ReadWriter
		if conn, err = serial.Open(name, baud); err == nil {
			rw = conn
		}
	case "ws":
		var conn *websocket.ReadWriter
		if conn, err = websocket.Dial(rawURL); err == nil {
			rw = conn
		}
	case "mqtt", "mqtts":
		broker, device := brokerURL(u)
		if device == "" {
			return nil, fmt.Errorf("mqtt link requires a device")
		}
		c, cerr := mqtt.NewConnector(broker)
		if cerr != nil {
			return nil, cerr
		}
		var conn *mqtt.Conn
		if conn, err = c.Connect(ctx, device); err == nil {
			rw = conn
		}
	default:
		return nil, &UnsupportedSchemeError{Scheme: u.Scheme}
	}
	if err != nil {
		return nil, err
	}
	return rw, nil
}
