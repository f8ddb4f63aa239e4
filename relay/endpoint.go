package relay

import (
	"fmt"
	"net"
)

// Endpoint is static host/port/path of a remote HTTP peer.
type Endpoint struct {
	Name      string // log tag
	Host      string
	Port      string
	Path      string
	UserAgent string
}

func (e Endpoint) HostPort() string { return net.JoinHostPort(e.Host, e.Port) }

func (e Endpoint) String() string {
	return fmt.Sprintf("%s=%s%s", e.Name, e.HostPort(), e.Path)
}

func (e Endpoint) validate() error {
	if e.Host == "" {
		return fmt.Errorf("%s host is empty", e.Name)
	}
	if e.Port == "" {
		return fmt.Errorf("%s port is empty", e.Name)
	}
	return nil
}
