// Package stream carries packets over a byte stream (TCP, pipes, serial).
//
// Frames are delimited by the framing layer, so packets are written as is
// and reads return whatever chunk is available.
package stream

import (
	"io"
	"net"

	"github.com/robotalks/eda.go/pkg/link"
)

// DefaultReadSize is the default maximum size of a read packet.
const DefaultReadSize = 256

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	io.ReadWriter
	ReadSize int
	// PacketMTU is reported as the link MTU when set.
	PacketMTU int
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s, ReadSize: DefaultReadSize}
}

// WithMTU sets the reported MTU.
func (p *ReadWriter) WithMTU(mtu int) *ReadWriter {
	p.PacketMTU = mtu
	return p
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	size := p.ReadSize
	if size <= 0 {
		size = DefaultReadSize
	}
	pkt := make([]byte, size)
	n, err := p.Read(pkt)
	if n > 0 {
		return pkt[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	_, err := p.Write(pkt)
	return err
}

// MTU implements link.MTUProvider.
func (p *ReadWriter) MTU() int {
	if p.PacketMTU > 0 {
		return p.PacketMTU
	}
	return link.DefaultMTU
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return link.Close(p.ReadWriter)
}

// Listener accepts TCP sessions.
type Listener struct {
	net.Listener
	MTU int
}

// Listen listens on a TCP address.
func Listen(addr string, mtu int) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: ln, MTU: mtu}, nil
}

// Accept implements link.Listener.
func (l *Listener) Accept() (link.PacketReadWriter, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return New(conn).WithMTU(l.MTU), nil
}

// Addr implements link.Listener.
func (l *Listener) Addr() string {
	return "tcp://" + l.Listener.Addr().String()
}

// Dial connects to a TCP address.
func Dial(addr string) (*ReadWriter, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
