package pipeline

import "github.com/robotalks/eda.go/pkg/afe"

// Connected is posted when a link session starts.
type Connected struct {
	MTU    int
	Notify bool
}

// Disconnected is posted when the link session ends.
type Disconnected struct {
	Err error
}

// NotifyChanged is posted when the peer toggles notifications.
type NotifyChanged struct {
	Enabled bool
}

// BufferReady carries a captured block, released once handled.
type BufferReady struct {
	Block *afe.RawSampleBlock
}

// DataReceived carries an inbound packet.
type DataReceived struct {
	Data []byte
}

// TxReady is posted when the link accepts the next chunk.
type TxReady struct{}

// Fault reports an unrecoverable acquisition failure.
type Fault struct {
	Err error
}

// EventKind implementations.

func (Connected) EventKind() string     { return "connected" }
func (Disconnected) EventKind() string  { return "disconnected" }
func (NotifyChanged) EventKind() string { return "notify-changed" }
func (BufferReady) EventKind() string   { return "buffer-ready" }
func (DataReceived) EventKind() string  { return "data-received" }
func (TxReady) EventKind() string       { return "tx-ready" }
func (Fault) EventKind() string         { return "fault" }
