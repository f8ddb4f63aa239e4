// Package tele publishes relay activity to MQTT broker.
// Topics, relative to client id:
//   w/1s  retained current State, single byte
//   w/1t  every relayed payload
//   w/1e  error text
package tele

import (
	"context"
	"fmt"

	"github.com/temoto/thermorelay/log2"
	tele_config "github.com/temoto/thermorelay/tele/config"
)

type State byte

const (
	StateInvalid State = iota // also MQTT will, means offline
	StateBoot
	StateRunning
	StateProblem
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateBoot:
		return "boot"
	case StateRunning:
		return "running"
	case StateProblem:
		return "problem"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", byte(s))
}

// Teler is telemetry client, device side.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Error(error)
	Relayed(payload []byte)
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (Noop) Close()                                                    {}
func (Noop) State(State)                                               {}
func (Noop) Error(error)                                               {}
func (Noop) Relayed([]byte)                                            {}
