// Package websocket carries packets as binary websocket messages.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/eda.go/pkg/link"
)

// DefaultMTU is the packet size used over websocket.
const DefaultMTU = 244

// ReadWriter implements PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// MTU implements link.MTUProvider.
func (p *ReadWriter) MTU() int {
	return DefaultMTU
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Dial connects to a websocket URL.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

type session struct {
	*ReadWriter
	done chan struct{}
	once sync.Once
}

func (s *session) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ReadWriter.Close()
}

// Listener serves websocket sessions over HTTP.
type Listener struct {
	Path string

	ln       net.Listener
	server   *http.Server
	accepted chan *session
	closed   chan struct{}
	once     sync.Once
}

// Listen serves websocket upgrades on addr at path.
func Listen(addr, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "/"
	}
	l := &Listener{
		Path:     path,
		ln:       ln,
		accepted: make(chan *session),
		closed:   make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(l.serve))
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket: serve: %v", err)
		}
	}()
	return l, nil
}

func (l *Listener) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	s := &session{ReadWriter: New(conn), done: make(chan struct{})}
	select {
	case l.accepted <- s:
	case <-l.closed:
		return
	}
	// The connection is closed when the handler returns.
	select {
	case <-s.done:
	case <-l.closed:
	}
}

// Accept implements link.Listener.
func (l *Listener) Accept() (link.PacketReadWriter, error) {
	select {
	case s := <-l.accepted:
		return s, nil
	case <-l.closed:
		return nil, link.ErrClosed
	}
}

// Addr implements link.Listener.
func (l *Listener) Addr() string {
	return "ws://" + l.ln.Addr().String() + l.Path
}

// Close implements io.Closer.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.server.Shutdown(context.Background())
	})
	return err
}
