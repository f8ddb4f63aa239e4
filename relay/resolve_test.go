package relay

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newFakeResolver("wttr.in")
	r.hosts["multi"] = []net.IP{net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)}
	r.hosts["empty"] = []net.IP{}

	t.Run("ok", func(t *testing.T) {
		ra, err := Resolve(ctx, r, "ip4", Endpoint{Name: "weather", Host: "wttr.in", Port: "80"})
		require.NoError(t, err)
		require.Len(t, ra.Addrs, 1)
		assert.Equal(t, "127.0.0.1:80", ra.Addrs[0].String())
		assert.Equal(t, "127.0.0.1:80", ra.String())
	})
	t.Run("multi/order", func(t *testing.T) {
		ra, err := Resolve(ctx, r, "ip4", Endpoint{Host: "multi", Port: "8000"})
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:8000,10.0.0.2:8000", ra.String())
	})
	t.Run("service-port", func(t *testing.T) {
		ra, err := Resolve(ctx, r, "ip4", Endpoint{Host: "wttr.in", Port: "http"})
		require.NoError(t, err)
		assert.Equal(t, 80, ra.Addrs[0].Port)
	})
	t.Run("unknown-host", func(t *testing.T) {
		_, err := Resolve(ctx, r, "ip4", Endpoint{Host: "nowhere.invalid", Port: "80"})
		require.Error(t, err)
		assert.True(t, IsResolveError(err))
	})
	t.Run("empty-result", func(t *testing.T) {
		_, err := Resolve(ctx, r, "ip4", Endpoint{Host: "empty", Port: "80"})
		require.Error(t, err)
		assert.True(t, IsResolveError(err))
		assert.True(t, errors.IsNotFound(errors.Cause(err).(*Error).Err))
	})
	t.Run("bad-port", func(t *testing.T) {
		_, err := Resolve(ctx, r, "ip4", Endpoint{Host: "wttr.in", Port: "-1"})
		require.Error(t, err)
		assert.True(t, IsResolveError(err))
	})
}

func TestResolveFresh(t *testing.T) {
	t.Parallel()

	r := newFakeResolver("wttr.in")
	e := Endpoint{Host: "wttr.in", Port: "80"}
	for i := 0; i < 3; i++ {
		_, err := Resolve(context.Background(), r, "ip4", e)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"wttr.in", "wttr.in", "wttr.in"}, r.Calls())

	r.err = fmt.Errorf("server misbehaving")
	_, err := Resolve(context.Background(), r, "ip4", e)
	assert.True(t, IsResolveError(err))
	assert.Contains(t, err.Error(), "server misbehaving")
}

func TestFaultOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FaultNone, FaultOf(nil))
	assert.Equal(t, FaultNone, FaultOf(fmt.Errorf("plain")))
	err := newError(FaultSend, Endpoint{Host: "h", Port: "1"}, fmt.Errorf("broken pipe"))
	assert.Equal(t, FaultSend, FaultOf(err))
	assert.Equal(t, FaultSend, FaultOf(errors.Annotate(err, "cycle")))
	assert.Equal(t, "send h:1: broken pipe", err.Error())
	assert.Equal(t, "fault(9)", Fault(9).String())
}
