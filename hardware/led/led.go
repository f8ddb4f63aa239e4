// Package led drives single activity indicator on a GPIO line.
package led

import (
	"sync"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const consumer = "thermorelay"

type LED struct {
	mu    sync.Mutex
	chip  gpio.Chiper // only for resource cleanup
	lines gpio.Lineser
	on    bool
}

func Open(chipPath string, line uint32, activeLow bool) (*LED, error) {
	chip, err := gpio.Open(chipPath, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "led open chip=%s", chipPath)
	}
	flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
	if activeLow {
		flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
	}
	lines, err := chip.OpenLines(flag, consumer, line)
	if err != nil {
		_ = chip.Close()
		return nil, errors.Annotatef(err, "led open chip=%s line=%d", chipPath, line)
	}
	l := New(lines)
	l.chip = chip
	return l, nil
}

func New(lines gpio.Lineser) *LED { return &LED{lines: lines} }

func (l *LED) Set(on bool) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var v byte
	if on {
		v = 1
	}
	l.lines.SetBulk(v)
	if err := l.lines.Flush(); err != nil {
		return errors.Annotate(err, "led set")
	}
	l.on = on
	return nil
}

func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.lines.Close()
	if l.chip != nil {
		if err2 := l.chip.Close(); err == nil {
			err = err2
		}
	}
	return err
}
