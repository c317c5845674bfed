// Package serial carries packets over a serial port.
package serial

import (
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/link/stream"
)

// DefaultBaudRate is the default line speed.
const DefaultBaudRate = 115200

// Open opens a serial port as a packet transport.
func Open(name string, baud int) (*stream.ReadWriter, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return stream.New(port), nil
}

// Ports lists the available serial ports.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Listener serves the single session of a serial line.
// Accept returns the opened port once and then blocks until closed.
type Listener struct {
	Name string

	rw     link.PacketReadWriter
	lock   sync.Mutex
	taken  bool
	closed chan struct{}
	once   sync.Once
}

// Listen opens the port for a device Endpoint.
func Listen(name string, baud int) (*Listener, error) {
	rw, err := Open(name, baud)
	if err != nil {
		return nil, err
	}
	return &Listener{Name: name, rw: rw, closed: make(chan struct{})}, nil
}

// Accept implements link.Listener.
func (l *Listener) Accept() (link.PacketReadWriter, error) {
	l.lock.Lock()
	taken := l.taken
	l.taken = true
	l.lock.Unlock()
	if !taken {
		return l.rw, nil
	}
	<-l.closed
	return nil, io.EOF
}

// Addr implements link.Listener.
func (l *Listener) Addr() string {
	return "serial://" + l.Name
}

// Close implements io.Closer.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = link.Close(l.rw)
	})
	return err
}
