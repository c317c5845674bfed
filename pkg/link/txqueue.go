package link

import (
	"context"

	"github.com/golang/glog"
)

// DefaultTxDepth is the default number of packets buffered by a TxQueue.
const DefaultTxDepth = 4

// TxQueue is an asynchronous PacketWriter with a bounded queue. WritePacket
// copies the packet or returns ErrBusy, and OnReady is called each time a
// queued packet has been written.
type TxQueue struct {
	Writer  PacketWriter
	OnReady func()
	OnError func(error)

	queue chan []byte
}

// NewTxQueue creates a TxQueue, depth <= 0 means default.
func NewTxQueue(w PacketWriter, depth int) *TxQueue {
	if depth <= 0 {
		depth = DefaultTxDepth
	}
	return &TxQueue{Writer: w, queue: make(chan []byte, depth)}
}

// WritePacket implements PacketWriter.
func (q *TxQueue) WritePacket(pkt []byte) error {
	select {
	case q.queue <- append([]byte(nil), pkt...):
		return nil
	default:
		return ErrBusy
	}
}

// Pending returns the number of queued packets.
func (q *TxQueue) Pending() int {
	return len(q.queue)
}

// Name implements Named.
func (q *TxQueue) Name() string {
	return "txqueue"
}

// Run implements Runnable.
func (q *TxQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt := <-q.queue:
			if err := q.Writer.WritePacket(pkt); err != nil {
				glog.V(2).Infof("link: tx: %v", err)
				if fn := q.OnError; fn != nil {
					fn(err)
				}
				return err
			}
			if fn := q.OnReady; fn != nil {
				fn()
			}
		}
	}
}
