package framing

// Parser reassembles frames from a byte stream.
// A frame is complete when the delimiter arrives. Frames longer than
// MaxFrame are discarded up to the next delimiter.
type Parser struct {
	MaxFrame int

	state parseState
	buf   []byte
}

// StreamState indicates the state of reassembly.
type StreamState int

const (
	// StreamIdle means no partial frame is pending.
	StreamIdle StreamState = iota
	// StreamReceiving means a frame is partially received.
	StreamReceiving
	// StreamDiscarding means an over-long frame is being skipped.
	StreamDiscarding
)

// IsReceiving indicates if it's in the middle of a frame.
func (s StreamState) IsReceiving() bool {
	return s != StreamIdle
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	State StreamState
	// Frame is a complete frame including the trailing delimiter.
	Frame []byte
	// Dropped is set when an over-long frame has been discarded.
	Dropped bool
}

type parseState int

const (
	stateIdle parseState = iota
	stateFrame
	stateDiscard
)

// NewParser creates a Parser accepting frames up to maxFrame bytes.
func NewParser(maxFrame int) *Parser {
	return &Parser{MaxFrame: maxFrame}
}

// State gets the current stream state.
func (p *Parser) State() StreamState {
	switch p.state {
	case stateFrame:
		return StreamReceiving
	case stateDiscard:
		return StreamDiscarding
	}
	return StreamIdle
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.buf = stateIdle, p.buf[:0]
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Frame, pr.Dropped = p.parseByte(b)
	pr.State = p.State()
	return
}

// Feed consumes data and calls fn for every complete frame.
// It returns the number of discarded frames.
func (p *Parser) Feed(data []byte, fn func(frame []byte)) (dropped int) {
	for _, b := range data {
		pr := p.Parse(b)
		if pr.Dropped {
			dropped++
		}
		if pr.Frame != nil && fn != nil {
			fn(pr.Frame)
		}
	}
	return
}

func (p *Parser) maxFrame() int {
	if p.MaxFrame <= 0 || p.MaxFrame > MaxPayload+Overhead {
		return MaxPayload + Overhead
	}
	return p.MaxFrame
}

func (p *Parser) parseByte(b byte) (frame []byte, dropped bool) {
	switch p.state {
	case stateIdle:
		if b == Sentinel {
			// empty frame.
			return
		}
		p.buf = append(p.buf[:0], b)
		p.state = stateFrame
	case stateFrame:
		p.buf = append(p.buf, b)
		if b == Sentinel {
			frame = make([]byte, len(p.buf))
			copy(frame, p.buf)
			p.Reset()
			return
		}
		if len(p.buf) >= p.maxFrame() {
			p.state = stateDiscard
		}
	case stateDiscard:
		if b == Sentinel {
			p.Reset()
			dropped = true
		}
	}
	return
}
