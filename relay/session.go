package relay

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermorelay/helpers"
)

const (
	DefaultReceiveTimeout = 5 * time.Second
	DefaultReadLimit      = 16 << 10
	recvChunk             = 64
)

var ErrReadLimit = errors.New("receive read limit reached")

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Session is one connection lifecycle: open, send, timed receive, close.
// Not safe for concurrent use, except Close.
type Session struct {
	endpoint Endpoint
	conn     net.Conn
	r        io.Reader
	w        io.Writer
	stat     *Stat
	limit    int
	closed   uint32
}

// Open connects to addresses of ra in order, no retries.
// On failure nothing is left open.
func Open(ctx context.Context, d Dialer, ra ResolvedAddress, stat *Stat) (*Session, error) {
	if stat == nil {
		stat = new(Stat)
	}
	if len(ra.Addrs) == 0 {
		return nil, newError(FaultConnect, ra.Endpoint, errors.NotFoundf("resolved address"))
	}
	var lastErr error
	for _, addr := range ra.Addrs {
		conn, err := d.DialContext(ctx, "tcp", addr.String())
		if err == nil {
			stat.Opened.Add(1)
			return &Session{
				endpoint: ra.Endpoint,
				conn:     conn,
				r:        helpers.NewStatReader(conn, &stat.RecvBytes),
				w:        helpers.NewStatWriter(conn, &stat.SendBytes),
				stat:     stat,
				limit:    DefaultReadLimit,
			}, nil
		}
		lastErr = errors.Annotatef(err, "addr=%s", addr)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, newError(FaultConnect, ra.Endpoint, lastErr)
}

func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *Session) SetReadLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

// Send writes all of b or fails.
func (s *Session) Send(b []byte) (int, error) {
	if s.isClosed() {
		return 0, newError(FaultSend, s.endpoint, errors.New("session closed"))
	}
	n, err := helpers.WriteAll(s.w, b)
	if err != nil {
		return n, newError(FaultSend, s.endpoint, err)
	}
	return n, nil
}

// ReceiveUntilClose reads until peer closes stream, deadline passes or read error.
// Bytes read before termination are always returned.
// Peer close is normal termination: nil error. Deadline returns IsTimeout error.
func (s *Session) ReceiveUntilClose(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	if s.isClosed() {
		return nil, errors.New("session closed")
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Annotate(err, "set receive deadline")
	}
	buf := make([]byte, 0, 512)
	var chunk [recvChunk]byte
	for {
		n, err := s.r.Read(chunk[:])
		if n > 0 {
			if room := s.limit - len(buf); n > room {
				buf = append(buf, chunk[:room]...)
				return buf, ErrReadLimit
			}
			buf = append(buf, chunk[:n]...)
		}
		switch {
		case err == nil:
		case err == io.EOF:
			return buf, nil
		case isTimeout(err):
			s.stat.ReceiveTimeouts.Add(1)
			return buf, errors.NewTimeout(err, "receive deadline")
		default:
			return buf, errors.Annotate(err, "receive")
		}
	}
}

// Close is idempotent.
func (s *Session) Close() error {
	if atomic.AddUint32(&s.closed, 1) != 1 {
		return nil
	}
	s.stat.Closed.Add(1)
	return s.conn.Close()
}

func (s *Session) isClosed() bool { return atomic.LoadUint32(&s.closed) != 0 }

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

