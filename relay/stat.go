package relay

// Values are read and modified atomically, but not consistently.

import (
	"expvar"
	"fmt"
	"time"

	"github.com/temoto/atomic_clock"
)

type Stat struct {
	Cycles  expvar.Int
	Relayed expvar.Int

	SensorErrors    expvar.Int
	ResolveErrors   expvar.Int
	ConnectErrors   expvar.Int
	SendErrors      expvar.Int
	ReceiveTimeouts expvar.Int
	Truncated       expvar.Int // payload bytes dropped

	Opened    expvar.Int
	Closed    expvar.Int
	RecvBytes expvar.Int
	SendBytes expvar.Int

	LastSuccess atomic_clock.Clock
	LastFailure atomic_clock.Clock
}

func (s *Stat) registerFault(f Fault) {
	s.LastFailure.SetNow()
	switch f {
	case FaultSensor:
		s.SensorErrors.Add(1)
	case FaultResolve:
		s.ResolveErrors.Add(1)
	case FaultConnect:
		s.ConnectErrors.Add(1)
	case FaultSend:
		s.SendErrors.Add(1)
	}
}

// SinceSuccess returns 0 when there was no successful relay yet.
func (s *Stat) SinceSuccess() time.Duration {
	if s.LastSuccess.IsZero() {
		return 0
	}
	return atomic_clock.Since(&s.LastSuccess)
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"cycles":%d,"relayed":%d,"err.sensor":%d,"err.resolve":%d,"err.connect":%d,"err.send":%d,"recv.timeout":%d,"truncated":%d,"opened":%d,"closed":%d,"recv.bytes":%d,"send.bytes":%d}`,
		s.Cycles.Value(), s.Relayed.Value(),
		s.SensorErrors.Value(), s.ResolveErrors.Value(), s.ConnectErrors.Value(), s.SendErrors.Value(),
		s.ReceiveTimeouts.Value(), s.Truncated.Value(),
		s.Opened.Value(), s.Closed.Value(), s.RecvBytes.Value(), s.SendBytes.Value())
}
