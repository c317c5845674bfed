// Package link binds the device pipeline to a packet transport.
//
// A transport moves packets (chunks of at most MTU bytes) and signals flow
// control. Frames are self-delimited by the framing layer, so packet
// boundaries carry no meaning and receivers reassemble on the delimiter.
package link

import (
	"errors"
	"io"
)

var (
	// ErrBusy indicates the transport can't accept a packet now.
	// The sender waits for the next ready signal.
	ErrBusy = errors.New("transport busy")
	// ErrClosed indicates the transport is closed.
	ErrClosed = errors.New("transport closed")
)

// DefaultMTU is the packet size before any MTU exchange.
const DefaultMTU = 20

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// MTUProvider is implemented by transports with a negotiated packet size.
type MTUProvider interface {
	MTU() int
}

// NotifySource is implemented by transports where the peer toggles
// notifications explicitly. Others have notifications enabled on connect.
type NotifySource interface {
	Notifications() <-chan bool
}

// Listener accepts sessions on the device side.
type Listener interface {
	Accept() (PacketReadWriter, error)
	io.Closer
	Addr() string
}

// Close closes rw if it's an io.Closer.
func Close(rw interface{}) error {
	if closer, ok := rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
