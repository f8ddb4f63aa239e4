package relay

import (
	"context"
	"net"
	"strings"

	"github.com/juju/errors"
)

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ResolvedAddress is owned by single Session, never cached.
type ResolvedAddress struct {
	Endpoint Endpoint
	Addrs    []*net.TCPAddr
}

func (ra ResolvedAddress) String() string {
	ss := make([]string, len(ra.Addrs))
	for i, a := range ra.Addrs {
		ss[i] = a.String()
	}
	return strings.Join(ss, ",")
}

// Resolve looks up e.Host on every call. network is one of ip4, ip6, ip.
func Resolve(ctx context.Context, r Resolver, network string, e Endpoint) (ResolvedAddress, error) {
	port, err := net.LookupPort("tcp", e.Port)
	if err != nil {
		return ResolvedAddress{}, newError(FaultResolve, e, errors.NotValidf("port=%s", e.Port))
	}
	ips, err := r.LookupIP(ctx, network, e.Host)
	if err != nil {
		return ResolvedAddress{}, newError(FaultResolve, e, errors.Annotatef(err, "lookup network=%s", network))
	}
	if len(ips) == 0 {
		return ResolvedAddress{}, newError(FaultResolve, e, errors.NotFoundf("address for host=%s", e.Host))
	}
	ra := ResolvedAddress{
		Endpoint: e,
		Addrs:    make([]*net.TCPAddr, 0, len(ips)),
	}
	for _, ip := range ips {
		ra.Addrs = append(ra.Addrs, &net.TCPAddr{IP: ip, Port: port})
	}
	return ra, nil
}
