package relay

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeSession connects Session to in-memory peer.
func pipeSession(t testing.TB) (*Session, net.Conn, *Stat) {
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	stat := &Stat{}
	dialer := dialFunc(func(ctx context.Context, network, address string) (net.Conn, error) { return client, nil })
	ra := ResolvedAddress{Endpoint: Endpoint{Name: "test", Host: "pipe", Port: "1"}, Addrs: []*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 1}}}
	s, err := Open(context.Background(), dialer, ra, stat)
	require.NoError(t, err)
	return s, server, stat
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

func TestSessionReceiveEOF(t *testing.T) {
	t.Parallel()

	s, peer, stat := pipeSession(t)
	defer s.Close()
	go func() {
		_, _ = peer.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
		_, _ = peer.Write([]byte(strings.Repeat("x", 100)))
		peer.Close()
	}()
	b, err := s.ReceiveUntilClose(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 19+100, len(b))
	assert.Equal(t, int64(119), stat.RecvBytes.Value())
}

func TestSessionReceiveZero(t *testing.T) {
	t.Parallel()

	s, peer, _ := pipeSession(t)
	defer s.Close()
	peer.Close()
	b, err := s.ReceiveUntilClose(time.Second)
	require.NoError(t, err)
	assert.Len(t, b, 0)
}

func TestSessionReceiveDeadline(t *testing.T) {
	t.Parallel()

	s, peer, stat := pipeSession(t)
	defer s.Close()
	go func() { _, _ = peer.Write([]byte("partial")) }()
	const timeout = 200 * time.Millisecond
	started := time.Now()
	b, err := s.ReceiveUntilClose(timeout)
	elapsed := time.Since(started)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err), "err=%v", err)
	assert.Equal(t, "partial", string(b))
	assert.GreaterOrEqual(t, int64(elapsed), int64(timeout))
	assert.Less(t, int64(elapsed), int64(timeout+2*time.Second))
	assert.Equal(t, int64(1), stat.ReceiveTimeouts.Value())
}

func TestSessionReadLimit(t *testing.T) {
	t.Parallel()

	s, peer, _ := pipeSession(t)
	defer s.Close()
	s.SetReadLimit(100)
	go func() {
		_, _ = peer.Write([]byte(strings.Repeat("y", 300)))
		peer.Close()
	}()
	b, err := s.ReceiveUntilClose(5 * time.Second)
	assert.Equal(t, ErrReadLimit, err)
	assert.Len(t, b, 100)
}

func TestSessionSend(t *testing.T) {
	t.Parallel()

	s, peer, stat := pipeSession(t)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := peer.Read(buf)
		done <- buf[:n]
	}()
	n, err := s.Send([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, "GET / HTTP/1.0\r\n\r\n", string(<-done))
	assert.Equal(t, int64(18), stat.SendBytes.Value())

	require.NoError(t, s.Close())
	_, err = s.Send([]byte("late"))
	assert.True(t, IsSendError(err))
}

func TestSessionSendPeerGone(t *testing.T) {
	t.Parallel()

	s, peer, _ := pipeSession(t)
	defer s.Close()
	peer.Close()
	_, err := s.Send([]byte("payload"))
	require.Error(t, err)
	assert.True(t, IsSendError(err))
}

func TestSessionCloseOnce(t *testing.T) {
	t.Parallel()

	s, _, stat := pipeSession(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int64(1), stat.Opened.Value())
	assert.Equal(t, int64(1), stat.Closed.Value())
	_, err := s.ReceiveUntilClose(time.Second)
	assert.Error(t, err)
}

func TestOpenFailure(t *testing.T) {
	t.Parallel()

	cd := &countDialer{refuse: map[int]bool{8000: true}}
	ra := ResolvedAddress{
		Endpoint: Endpoint{Name: "relay", Host: "sink", Port: "8000"},
		Addrs: []*net.TCPAddr{
			{IP: net.IPv4(10, 0, 0, 1), Port: 8000},
			{IP: net.IPv4(10, 0, 0, 2), Port: 8000},
		},
	}
	stat := &Stat{}
	s, err := Open(context.Background(), cd, ra, stat)
	assert.Nil(t, s)
	assert.True(t, IsConnectError(err))
	assert.Equal(t, []string{"10.0.0.1:8000", "10.0.0.2:8000"}, cd.Dials())
	assert.Equal(t, int64(0), stat.Opened.Value())

	_, err = Open(context.Background(), cd, ResolvedAddress{Endpoint: ra.Endpoint}, nil)
	assert.True(t, IsConnectError(err))
}

func TestOpenLoopback(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "HTTP/1.0 200 OK\r\n\r\nhi", false)
	cd := &countDialer{}
	ra, err := Resolve(context.Background(), newFakeResolver("loop"), "ip4", srv.Endpoint("test", "loop", "/"))
	require.NoError(t, err)
	s, err := Open(context.Background(), cd, ra, nil)
	require.NoError(t, err)
	_, err = s.Send(WeatherRequest(ra.Endpoint))
	require.NoError(t, err)
	b, err := s.ReceiveUntilClose(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\n\r\nhi", string(b))
	require.NoError(t, s.Close())
	assert.Equal(t, 1, cd.Conns()[0].Closed())
	assert.Equal(t, "GET", srv.Request(t).Method)
}
