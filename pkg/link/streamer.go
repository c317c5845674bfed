package link

import (
	"errors"
	"sync"

	"github.com/golang/glog"
)

// SendState is the state of a Streamer.
type SendState int

// Send states.
const (
	Idle SendState = iota
	Sending
)

func (s SendState) String() string {
	if s == Sending {
		return "sending"
	}
	return "idle"
}

// StreamerStats are the counters of a Streamer.
type StreamerStats struct {
	// Accepted frames.
	Accepted uint64
	// Completed frames.
	Completed uint64
	// Busy counts frames dropped while a frame was in flight.
	Busy uint64
	// Offline counts frames dropped while disconnected or not notifying.
	Offline uint64
	// Aborted frames by disconnect or write errors.
	Aborted uint64
	// Chunks written.
	Chunks uint64
}

// Streamer sends frames in MTU sized chunks, one frame at a time.
// A frame offered while another is in flight is dropped, never queued.
type Streamer struct {
	lock      sync.Mutex
	sink      PacketWriter
	mtu       int
	connected bool
	notify    bool

	state   SendState
	buf     []byte
	offset  int
	session uint64
	writing bool
	stats   StreamerStats
}

// NewStreamer creates a Streamer with DefaultMTU.
func NewStreamer() *Streamer {
	return &Streamer{mtu: DefaultMTU}
}

// Attach sets the chunk sink of a new connection and marks it connected.
func (s *Streamer) Attach(sink PacketWriter, notify bool) {
	s.lock.Lock()
	s.abortLocked()
	s.sink, s.connected, s.notify = sink, true, notify
	s.lock.Unlock()
}

// SetConnected updates the link state. Disconnecting aborts the frame in
// flight.
func (s *Streamer) SetConnected(connected bool) {
	s.lock.Lock()
	if !connected {
		s.abortLocked()
		s.sink = nil
	}
	s.connected = connected
	s.lock.Unlock()
}

// SetNotify updates whether the peer accepts notifications.
// Disabling aborts the frame in flight.
func (s *Streamer) SetNotify(enabled bool) {
	s.lock.Lock()
	if !enabled {
		s.abortLocked()
	}
	s.notify = enabled
	s.lock.Unlock()
}

// SetMTU sets the chunk size.
func (s *Streamer) SetMTU(mtu int) {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	s.lock.Lock()
	s.mtu = mtu
	s.lock.Unlock()
}

// MTU returns the chunk size.
func (s *Streamer) MTU() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.mtu
}

// Ready tells if a frame would be accepted.
func (s *Streamer) Ready() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.readyLocked()
}

// State returns the state with the bytes remaining and the offset of the
// frame in flight.
func (s *Streamer) State() (state SendState, remaining, offset int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state == Sending {
		return s.state, len(s.buf) - s.offset, s.offset
	}
	return Idle, 0, 0
}

// Stats returns a snapshot of the counters.
func (s *Streamer) Stats() StreamerStats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats
}

// Send starts streaming frame, it returns false when the frame is dropped.
// The frame is copied.
func (s *Streamer) Send(frame []byte) bool {
	s.lock.Lock()
	if !s.readyLocked() {
		if s.state == Sending {
			s.stats.Busy++
		} else {
			s.stats.Offline++
		}
		s.lock.Unlock()
		return false
	}
	s.buf = append(s.buf[:0], frame...)
	s.offset, s.state = 0, Sending
	s.stats.Accepted++
	s.lock.Unlock()
	s.pump()
	return true
}

// OnTxReady resumes a paused frame.
func (s *Streamer) OnTxReady() {
	s.pump()
}

func (s *Streamer) readyLocked() bool {
	return s.connected && s.notify && s.sink != nil && s.state == Idle
}

func (s *Streamer) abortLocked() {
	if s.state == Sending {
		s.stats.Aborted++
		glog.V(2).Infof("link: frame aborted at %d/%d", s.offset, len(s.buf))
	}
	s.state, s.offset = Idle, 0
	s.session++
}

func (s *Streamer) pump() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.writing {
		return
	}
	for s.state == Sending {
		end := s.offset + s.mtu
		if end > len(s.buf) {
			end = len(s.buf)
		}
		chunk, sink, session := s.buf[s.offset:end], s.sink, s.session
		s.writing = true
		s.lock.Unlock()
		err := sink.WritePacket(chunk)
		s.lock.Lock()
		s.writing = false
		if session != s.session {
			return
		}
		if errors.Is(err, ErrBusy) {
			return
		}
		if err != nil {
			glog.Warningf("link: write chunk: %v", err)
			s.abortLocked()
			return
		}
		s.stats.Chunks++
		if s.offset = end; s.offset >= len(s.buf) {
			s.state, s.offset = Idle, 0
			s.stats.Completed++
		}
	}
}
