package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermorelay/hardware/i2c"
	"github.com/temoto/thermorelay/hardware/led"
	"github.com/temoto/thermorelay/hardware/shtc3"
	"github.com/temoto/thermorelay/helpers"
	"github.com/temoto/thermorelay/log2"
	"github.com/temoto/thermorelay/relay"
)

const (
	DefaultI2CBus  = "0"
	DefaultLedChip = "/dev/gpiochip0"
)

type hardware struct {
	Sensor struct {
		once
		Bus    i2c.Bus // may be set before Init in tests
		sensor relay.Sensor
	}
	Led struct {
		once
		led *led.LED
	}
}

func (g *Global) Sensor() (relay.Sensor, error) {
	x := &g.Hardware.Sensor // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.Sensor
		switch cfg.Driver {
		case "", "shtc3":
			if x.Bus == nil {
				var err error
				if x.Bus, err = g.openI2C(); err != nil {
					return err
				}
			}
			dev := shtc3.New(x.Bus, uint16(cfg.Addr))
			g.Log.Infof("sensor=shtc3 bus=%s addr=%02x", x.Bus, dev.Addr)
			x.sensor = shtc3Sensor(dev, g.sensorLog())
			return nil

		case "mock":
			if len(cfg.MockCelsius) == 0 {
				return errors.NotValidf("config: hardware.sensor.mock_celsius empty")
			}
			g.Log.Infof("sensor=mock values=%v", cfg.MockCelsius)
			x.sensor = newMockSensor(cfg.MockCelsius)
			return nil

		default:
			return fmt.Errorf("config: unknown hardware.sensor.driver=\"%s\" valid: shtc3, mock", cfg.Driver)
		}
	})
	return x.sensor, x.err
}

func (g *Global) openI2C() (i2c.Bus, error) {
	cfg := &g.Config.Hardware.Sensor
	name := cfg.Bus
	if name == "" {
		name = DefaultI2CBus
	}
	switch cfg.Backend {
	case "", "dev":
		n, err := strconv.ParseUint(name, 10, 8)
		if err != nil {
			return nil, errors.NotValidf("config: hardware.sensor.bus=%s backend=dev expects number", name)
		}
		timeout := helpers.IntMillisecondDefault(cfg.TimeoutMs, relay.DefaultSensorTimeout)
		return i2c.NewDevBus(byte(n), timeout), nil
	case "periph":
		return i2c.OpenPeriph(cfg.Bus)
	default:
		return nil, fmt.Errorf("config: unknown hardware.sensor.backend=\"%s\" valid: dev, periph", cfg.Backend)
	}
}

// Led returns nil,nil when disabled.
func (g *Global) Led() (*led.LED, error) {
	x := &g.Hardware.Led // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.Led
		if !cfg.Enable {
			return nil
		}
		chip := cfg.Chip
		if chip == "" {
			chip = DefaultLedChip
		}
		l, err := led.Open(chip, uint32(cfg.Pin), cfg.ActiveLow)
		if err != nil {
			return errors.Annotatef(err, "config: hardware.led chip=%s pin=%d", chip, cfg.Pin)
		}
		x.led = l
		return nil
	})
	return x.led, x.err
}

func (g *Global) closeHardware() error {
	errs := make([]error, 0, 2)
	if l := g.Hardware.Led.led; l != nil {
		if err := l.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "led close"))
		}
	}
	if b := g.Hardware.Sensor.Bus; b != nil {
		if err := b.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "i2c close"))
		}
	}
	return helpers.FoldErrors(errs)
}

// sensorLog shows driver debug only with hardware.sensor.log_debug
func (g *Global) sensorLog() *log2.Log {
	var level log2.Level = log2.LInfo
	if g.Config.Hardware.Sensor.LogDebug {
		level = log2.LDebug
	}
	l := g.Log.Clone(level)
	l.SetPrefix("sensor: ")
	return l
}

func shtc3Sensor(dev *shtc3.Device, log *log2.Log) relay.Sensor {
	return relay.SensorFunc(func(ctx context.Context) (relay.Reading, error) {
		begin := time.Now()
		m, err := dev.Measure(ctx)
		if err != nil {
			log.Debugf("shtc3 measure duration=%v err=%v", time.Since(begin), err)
			return relay.Reading{}, err
		}
		log.Debugf("shtc3 %s duration=%v", m, time.Since(begin))
		return relay.Reading{Celsius: m.Celsius, Humidity: m.Humidity, Time: time.Now()}, nil
	})
}

type mockSensor struct {
	values []float64
	next   uint32
}

func newMockSensor(values []float64) *mockSensor { return &mockSensor{values: values} }

func (m *mockSensor) Read(ctx context.Context) (relay.Reading, error) {
	i := atomic.AddUint32(&m.next, 1) - 1
	return relay.Reading{Celsius: m.values[int(i)%len(m.values)], Time: time.Now()}, nil
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
