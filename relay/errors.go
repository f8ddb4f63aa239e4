package relay

import (
	"fmt"

	"github.com/juju/errors"
)

type Fault int

const (
	FaultNone Fault = iota
	FaultSensor
	FaultResolve
	FaultConnect
	FaultSend
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultSensor:
		return "sensor"
	case FaultResolve:
		return "resolve"
	case FaultConnect:
		return "connect"
	case FaultSend:
		return "send"
	}
	return fmt.Sprintf("fault(%d)", int(f))
}

// Error is a cycle-terminating failure.
type Error struct {
	Fault    Fault
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Fault, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Fault, e.Endpoint, e.Err)
}

func newError(f Fault, e Endpoint, err error) error {
	return &Error{Fault: f, Endpoint: e.HostPort(), Err: err}
}

// FaultOf classifies err, possibly annotated with juju/errors.
func FaultOf(err error) Fault {
	if err == nil {
		return FaultNone
	}
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Fault
	}
	return FaultNone
}

func IsResolveError(err error) bool { return FaultOf(err) == FaultResolve }
func IsConnectError(err error) bool { return FaultOf(err) == FaultConnect }
func IsSendError(err error) bool    { return FaultOf(err) == FaultSend }
func IsSensorError(err error) bool  { return FaultOf(err) == FaultSensor }
