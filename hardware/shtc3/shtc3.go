// Package shtc3 reads Sensirion SHTC3 temperature/humidity sensor over I2C.
package shtc3

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermorelay/crc"
	"github.com/temoto/thermorelay/hardware/i2c"
)

const (
	DefaultAddr uint16 = 0x70

	// normal mode, clock stretching enabled, temperature first
	CmdMeasureTFirstStretch uint16 = 0x7ca2
	CmdWakeup               uint16 = 0x3517
	CmdSleep                uint16 = 0xb098

	DefaultConversion = 20 * time.Millisecond
)

var ErrChecksum = errors.New("shtc3 checksum mismatch")

type Measurement struct {
	Celsius  float64
	Humidity float64 // relative, percent
}

func (m Measurement) String() string {
	return fmt.Sprintf("t=%.2fC rh=%.1f%%", m.Celsius, m.Humidity)
}

type Device struct {
	Bus        i2c.Bus
	Addr       uint16
	Conversion time.Duration // wait between measure command and result read

	mu sync.Mutex // command, wait and read belong to one measurement
}

func New(bus i2c.Bus, addr uint16) *Device {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &Device{Bus: bus, Addr: addr, Conversion: DefaultConversion}
}

func (d *Device) command(cmd uint16) error {
	return d.Bus.Tx(d.Addr, []byte{byte(cmd >> 8), byte(cmd & 0xff)}, nil)
}

// Measure runs one measurement transaction: command, conversion wait, 6 byte read.
// Concurrent calls are serialized, abandoned caller still owns the bus until its read is done.
func (d *Device) Measure(ctx context.Context) (Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}
	if err := d.command(CmdMeasureTFirstStretch); err != nil {
		return Measurement{}, errors.Annotate(err, "shtc3 measure command")
	}
	if d.Conversion > 0 {
		tmr := time.NewTimer(d.Conversion)
		select {
		case <-tmr.C:
		case <-ctx.Done():
			tmr.Stop()
			return Measurement{}, ctx.Err()
		}
	}
	var data [6]byte
	if err := d.Bus.Tx(d.Addr, nil, data[:]); err != nil {
		return Measurement{}, errors.Annotate(err, "shtc3 read")
	}
	return Decode(data)
}

func (d *Device) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Annotate(d.command(CmdSleep), "shtc3 sleep")
}

func (d *Device) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Annotate(d.command(CmdWakeup), "shtc3 wakeup")
}

// Decode validates checksums of both words and converts raw values.
// Layout: T msb, T lsb, T crc, RH msb, RH lsb, RH crc.
func Decode(data [6]byte) (Measurement, error) {
	if c := crc.CRC8_sensirion(data[0], data[1]); c != data[2] {
		return Measurement{}, errors.Annotatef(ErrChecksum, "temperature word=%02x%02x crc=%02x expected=%02x", data[0], data[1], data[2], c)
	}
	if c := crc.CRC8_sensirion(data[3], data[4]); c != data[5] {
		return Measurement{}, errors.Annotatef(ErrChecksum, "humidity word=%02x%02x crc=%02x expected=%02x", data[3], data[4], data[5], c)
	}
	rawT := uint16(data[0])<<8 | uint16(data[1])
	rawRH := uint16(data[3])<<8 | uint16(data[4])
	return Measurement{
		Celsius:  -45 + 175*(float64(rawT)/65535),
		Humidity: 100 * (float64(rawRH) / 65535),
	}, nil
}
