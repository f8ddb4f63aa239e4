package relay

import "github.com/juju/errors"

const DefaultPayloadCapacity = 1024

var ErrCapacityExceeded = errors.New("payload capacity exceeded")

// Payload is bounded byte accumulator.
// Len() never exceeds Cap(); bytes past capacity are dropped.
type Payload struct {
	buf     []byte
	dropped int
}

func NewPayload(capacity int) *Payload {
	if capacity <= 0 {
		capacity = DefaultPayloadCapacity
	}
	return &Payload{buf: make([]byte, 0, capacity)}
}

// Write stores as much of b as fits. n is number of stored bytes.
// Truncation returns ErrCapacityExceeded together with partial n.
func (p *Payload) Write(b []byte) (int, error) {
	n := len(b)
	if room := p.Remaining(); n > room {
		n = room
	}
	p.buf = append(p.buf, b[:n]...)
	if n < len(b) {
		p.dropped += len(b) - n
		return n, ErrCapacityExceeded
	}
	return n, nil
}

func (p *Payload) WriteString(s string) (int, error) { return p.Write([]byte(s)) }

func (p *Payload) Bytes() []byte  { return p.buf }
func (p *Payload) Cap() int       { return cap(p.buf) }
func (p *Payload) Len() int       { return len(p.buf) }
func (p *Payload) Remaining() int { return cap(p.buf) - len(p.buf) }
func (p *Payload) Dropped() int   { return p.dropped }
func (p *Payload) String() string { return string(p.buf) }

func (p *Payload) Reset() {
	p.buf = p.buf[:0]
	p.dropped = 0
}
