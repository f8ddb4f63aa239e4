package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/thermorelay/helpers"
)

type fakeResolver struct {
	mu    sync.Mutex
	hosts map[string][]net.IP
	err   error
	calls []string
}

func newFakeResolver(hosts ...string) *fakeResolver {
	r := &fakeResolver{hosts: make(map[string][]net.IP)}
	for _, h := range hosts {
		r.hosts[h] = []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	return r
}

func (r *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, host)
	if r.err != nil {
		return nil, r.err
	}
	ips, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return ips, nil
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// countDialer dials loopback for real, except ports listed in refuse.
// Conns to ports listed in failWrite connect but every Write fails.
// Every returned conn counts Close calls.
type countDialer struct {
	mu        sync.Mutex
	d         net.Dialer
	refuse    map[int]bool
	failWrite map[int]bool
	dials     []string
	conns     []*countConn
}

func (cd *countDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	cd.mu.Lock()
	cd.dials = append(cd.dials, address)
	_, portStr, _ := net.SplitHostPort(address)
	port, _ := strconv.Atoi(portStr)
	refuse := cd.refuse[port]
	failWrite := cd.failWrite[port]
	cd.mu.Unlock()
	if refuse {
		return nil, &net.OpError{Op: "dial", Net: network, Err: fmt.Errorf("connection refused")}
	}
	conn, err := cd.d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	cc := &countConn{Conn: conn}
	if failWrite {
		cc.writeErr = &net.OpError{Op: "write", Net: network, Err: errBrokenPipe}
	}
	cd.mu.Lock()
	cd.conns = append(cd.conns, cc)
	cd.mu.Unlock()
	return cc, nil
}

func (cd *countDialer) Dials() []string {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return append([]string(nil), cd.dials...)
}

func (cd *countDialer) Conns() []*countConn {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return append([]*countConn(nil), cd.conns...)
}

var errBrokenPipe = errors.New("broken pipe")

type countConn struct {
	net.Conn
	closed   int32
	writeErr error
}

func (c *countConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.Conn.Write(b)
}

func (c *countConn) Close() error {
	atomic.AddInt32(&c.closed, 1)
	return c.Conn.Close()
}

func (c *countConn) Closed() int { return int(atomic.LoadInt32(&c.closed)) }

type recvRequest struct {
	Method    string
	Path      string
	Host      string
	UserAgent string
	Header    http.Header
	Body      []byte
}

// testServer accepts loopback connections, parses one HTTP request per conn
// and writes reply. hold keeps conn open without reply until test ends.
type testServer struct {
	t     testing.TB
	ln    net.Listener
	reply []byte
	hold  bool
	reqs  chan recvRequest
	wg    sync.WaitGroup
	done  chan struct{}
}

func newTestServer(t testing.TB, reply string, hold bool) *testServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &testServer{
		t:     t,
		ln:    ln,
		reply: []byte(reply),
		hold:  hold,
		reqs:  make(chan recvRequest, 16),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *testServer) Endpoint(name, host, path string) Endpoint {
	return Endpoint{Name: name, Host: host, Port: strconv.Itoa(s.Port()), Path: path, UserAgent: DefaultRelayUserAgent}
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *testServer) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err == io.EOF {
		// client closed without sending request
		return
	}
	if err != nil {
		s.t.Errorf("test server read request err=%v", err)
		return
	}
	body, _ := ioutil.ReadAll(req.Body)
	s.reqs <- recvRequest{
		Method:    req.Method,
		Path:      req.URL.RequestURI(),
		Host:      req.Host,
		UserAgent: req.UserAgent(),
		Header:    req.Header,
		Body:      body,
	}
	if s.hold {
		<-s.done
		return
	}
	_, _ = conn.Write(s.reply)
}

func (s *testServer) close() {
	close(s.done)
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *testServer) Request(t testing.TB) recvRequest {
	select {
	case r := <-s.reqs:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("test server request timeout")
		return recvRequest{}
	}
}

func (s *testServer) NoRequest(t testing.TB) {
	select {
	case r := <-s.reqs:
		t.Errorf("test server unexpected request %s %s", r.Method, r.Path)
	default:
	}
}

// sleepRecorder replaces real waiting. Stops alive after limit calls.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
	limit int
	a     *alive.Alive
}

func (sr *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	sr.mu.Lock()
	sr.calls = append(sr.calls, d)
	n := len(sr.calls)
	sr.mu.Unlock()
	if sr.limit > 0 && n >= sr.limit {
		sr.a.Stop()
		return helpers.ErrStopped
	}
	return nil
}

func (sr *sleepRecorder) Calls() []time.Duration {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]time.Duration(nil), sr.calls...)
}

func fixedSensor(celsius float64) Sensor {
	return SensorFunc(func(ctx context.Context) (Reading, error) {
		return Reading{Celsius: celsius, Humidity: 50}, nil
	})
}

var errSensorBus = errors.New("i2c bus nack")

func failSensor(calls *int32) Sensor {
	return SensorFunc(func(ctx context.Context) (Reading, error) {
		atomic.AddInt32(calls, 1)
		return Reading{}, errSensorBus
	})
}
