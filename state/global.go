package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/thermorelay/helpers"
	"github.com/temoto/thermorelay/log2"
	"github.com/temoto/thermorelay/relay"
	tele_api "github.com/temoto/thermorelay/tele"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Relay        *relay.Relay
	Tele         tele_api.Teler

	// replaced in tests
	XXX_relayOptions func(*relay.Options)
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	g.Log.Infof("build version=%s", g.BuildVersion)
	if strings.HasSuffix(g.BuildVersion, "-dirty") {
		g.Log.Infof("running development build with uncommited changes")
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	g.Config.Tele.BuildVersion = g.BuildVersion
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	g.Tele.State(tele_api.StateBoot)

	errs := make([]error, 0, 2)
	sensor, err := g.Sensor()
	if err != nil {
		errs = append(errs, errors.Annotate(err, "sensor init"))
	}
	led, err := g.Led()
	if err != nil {
		// indicator is optional, keep running without it
		g.Error(err, "led init")
	}
	if len(errs) != 0 {
		g.Tele.State(tele_api.StateProblem)
		return helpers.FoldErrors(errs)
	}

	opt := relay.Options{
		Config: cfg.RelayConfig(),
		Log:    g.Log,
		Sensor: sensor,
		Alive:  g.Alive,
		OnRelayed: func(payload []byte, _ relay.Reading) {
			g.Tele.Relayed(payload)
		},
	}
	if led != nil {
		opt.Indicator = led
	}
	if g.XXX_relayOptions != nil {
		g.XXX_relayOptions(&opt)
	}
	if g.Relay, err = relay.New(opt); err != nil {
		g.Tele.State(tele_api.StateProblem)
		return errors.Annotate(err, "relay init")
	}
	g.Log.Debugf("config: weather=%s relay=%s", opt.Weather, opt.Relay)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Run blocks until Alive is stopped or ctx is done.
func (g *Global) Run(ctx context.Context) error {
	if g.Relay == nil {
		return errors.Errorf("code error Run() before Init()")
	}
	g.Tele.State(tele_api.StateRunning)
	err := g.Relay.Run(ctx)
	g.Tele.State(tele_api.StateStopping)
	if err == helpers.ErrStopped {
		err = nil
	}
	return err
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		// SetErrorFunc mirrors to tele
		g.Log.Error(errors.ErrorStack(err))
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases hardware and telemetry. Call after Run returned.
func (g *Global) Close() error {
	err := g.closeHardware()
	g.Tele.Close()
	return err
}
