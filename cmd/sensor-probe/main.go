// sensor-probe reads SHTC3 in a loop, for bench wiring checks.
package main

import (
	"context"
	"flag"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermorelay/hardware/i2c"
	"github.com/temoto/thermorelay/hardware/shtc3"
	"github.com/temoto/thermorelay/log2"
)

func main() {
	flagBackend := flag.String("backend", "dev", "dev|periph")
	flagBus := flag.String("bus", "0", "/dev/i2c-N number or periph bus name")
	flagAddr := flag.Uint("addr", uint(shtc3.DefaultAddr), "")
	flagCount := flag.Int("count", 0, "0 = forever")
	flagInterval := flag.Duration("interval", 1*time.Second, "")
	flag.Parse()

	log := log2.NewStderr(log2.LDebug)
	log.SetFlags(log2.LInteractiveFlags)

	bus, err := openBus(*flagBackend, *flagBus)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer bus.Close()

	dev := shtc3.New(bus, uint16(*flagAddr))
	if err = dev.Wakeup(); err != nil {
		log.Errorf("wakeup err=%v", err)
	}
	ctx := context.Background()
	for i := 0; *flagCount == 0 || i < *flagCount; i++ {
		m, err := dev.Measure(ctx)
		if err == nil {
			log.Infof("bus=%s addr=%02x %s", bus, dev.Addr, m)
		} else {
			log.Errorf("bus=%s addr=%02x err=%v", bus, dev.Addr, err)
		}
		time.Sleep(*flagInterval)
	}
}

func openBus(backend, name string) (i2c.Bus, error) {
	switch backend {
	case "dev":
		n, err := strconv.ParseUint(name, 10, 8)
		if err != nil {
			return nil, errors.NotValidf("bus=%s", name)
		}
		return i2c.NewDevBus(byte(n), time.Second), nil
	case "periph":
		return i2c.OpenPeriph(name)
	}
	return nil, errors.NotValidf("backend=%s", backend)
}
