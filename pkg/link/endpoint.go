package link

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/eda.go/pkg/framework"
)

// Handler receives the link events of an Endpoint. Callbacks come from the
// endpoint goroutines and are expected to hand off quickly.
type Handler interface {
	// LinkUp reports a new session with its chunk sink.
	LinkUp(sink PacketWriter, mtu int, notify bool)
	// LinkDown reports the end of the session.
	LinkDown(err error)
	// NotifyChanged reports the peer toggling notifications.
	NotifyChanged(enabled bool)
	// DataReceived delivers an inbound packet.
	DataReceived(data []byte)
	// TxReady reports the sink accepts the next chunk.
	TxReady()
}

// Endpoint serves device sessions accepted from a Listener, one at a time.
type Endpoint struct {
	Listener Listener
	Handler  Handler
	TxDepth  int
}

// Name implements Named.
func (e *Endpoint) Name() string {
	return "endpoint"
}

// Run implements Runnable.
func (e *Endpoint) Run(ctx context.Context) error {
	glog.Infof("link: listening on %s", e.Listener.Addr())
	return fx.RunWithContextCloser(ctx, e.Listener, func() error {
		for {
			rw, err := e.Listener.Accept()
			if err != nil {
				return err
			}
			if err = e.Serve(ctx, rw); err != nil && ctx.Err() == nil {
				glog.Warningf("link: session: %v", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}

// Serve runs a session on rw until it fails or ctx is done.
func (e *Endpoint) Serve(ctx context.Context, rw PacketReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	txq := NewTxQueue(rw, e.TxDepth)
	txq.OnReady = e.Handler.TxReady
	mtu := DefaultMTU
	if p, ok := rw.(MTUProvider); ok {
		mtu = p.MTU()
	}
	notify, notifyCh := true, (<-chan bool)(nil)
	if ns, ok := rw.(NotifySource); ok {
		notify, notifyCh = false, ns.Notifications()
	}

	glog.Infof("link: connected, mtu %d", mtu)
	e.Handler.LinkUp(txq, mtu, notify)

	errCh := make(chan error, 3)
	run := func(fn func() error) {
		go func() {
			errCh <- fn()
			cancel()
		}()
	}
	run(func() error { return txq.Run(ctx) })
	run(func() error {
		return fx.RunWithContextCancel(ctx, func() { Close(rw) }, func() error {
			for {
				pkt, err := rw.ReadPacket()
				if err != nil {
					return err
				}
				if len(pkt) > 0 {
					e.Handler.DataReceived(pkt)
				}
			}
		})
	})
	run(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case enabled, ok := <-notifyCh:
				if !ok {
					<-ctx.Done()
					return ctx.Err()
				}
				e.Handler.NotifyChanged(enabled)
			}
		}
	})

	var errs fx.AggregatedError
	for n := 0; n < 3; n++ {
		if err := <-errCh; !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			errs.Add(err)
		}
	}
	Close(rw)
	err := errs.Aggregate()
	glog.Infof("link: disconnected")
	e.Handler.LinkDown(err)
	return err
}
