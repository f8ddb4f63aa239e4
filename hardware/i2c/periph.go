package i2c

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

type periphBus struct {
	name string
	bus  i2c.BusCloser
}

// OpenPeriph opens bus by periph registry name, e.g. "1" or "I2C1".
// Empty name selects first available bus.
func OpenPeriph(name string) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open bus=%s", name)
	}
	return &periphBus{name: name, bus: bus}, nil
}

func (b *periphBus) String() string { return "periph:" + b.bus.String() }

func (b *periphBus) Tx(addr uint16, bw []byte, br []byte) error {
	if len(bw) == 0 && len(br) == 0 {
		return errors.Errorf("i2c Tx both bw=br=nil nothing to do")
	}
	d := i2c.Dev{Bus: b.bus, Addr: addr}
	if err := d.Tx(bw, br); err != nil {
		return errors.Annotatef(err, "i2c tx addr=%02x", addr)
	}
	return nil
}

func (b *periphBus) Close() error { return b.bus.Close() }
