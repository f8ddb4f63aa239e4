package i2c

// Thanks to
// https://github.com/kidoman/embd and https://bitbucket.org/gmcbay/i2c

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	I2C_RETRIES = 0x0701 /* number of times a device address should be polled when not acknowledging */
	I2C_TIMEOUT = 0x0702 /* set timeout in units of 10 ms */
	I2C_SLAVE   = 0x0703 /* Use this slave address */
	I2C_FUNCS   = 0x0705 /* Get the adapter functionality mask */
	I2C_RDWR    = 0x0707 /* Combined R/W transfer (one STOP only) */

	// i2c_msg flags
	// as defined in /usr/include/linux/i2c.h
	I2C_M_RD  = 0x0001 /* read data, from slave to master */
	I2C_M_TEN = 0x0010 /* this is a ten bit chip address */
)

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

// Bus is used to interact with the I2C bus.
// Tx writes bw (may be nil), then reads len(br) bytes (br may be nil).
type Bus interface {
	Close() error
	Tx(addr uint16, bw []byte, br []byte) error
	String() string
}

type devBus struct {
	busNo       byte
	file        *os.File
	timeout     time.Duration
	lk          sync.Mutex
	initialized bool
}

// NewDevBus talks to /dev/i2c-N with I2C_RDWR ioctl.
// File is opened lazily on first Tx.
func NewDevBus(busNo byte, timeout time.Duration) Bus {
	return &devBus{busNo: busNo, timeout: timeout}
}

func (b *devBus) String() string { return fmt.Sprintf("/dev/i2c-%d", b.busNo) }

func (b *devBus) init() error {
	if b.initialized {
		return nil
	}

	var err error
	if b.file, err = os.OpenFile(b.String(), os.O_RDWR, os.ModeExclusive); err != nil {
		return errors.Annotate(err, "i2c open")
	}
	if b.timeout > 0 {
		// kernel unit is 10ms
		units := int(b.timeout / (10 * time.Millisecond))
		if units < 1 {
			units = 1
		}
		if err = unix.IoctlSetInt(int(b.file.Fd()), I2C_TIMEOUT, units); err != nil {
			_ = b.file.Close()
			return errors.Annotatef(err, "i2c set timeout=%s", b.timeout)
		}
	}
	b.initialized = true

	return nil
}

func (b *devBus) Tx(addr uint16, bw []byte, br []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if err := b.init(); err != nil {
		return err
	}

	nmsg := uint32(0)
	msgs := [2]i2c_msg{}
	if len(bw) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: 0,
			buf: uintptr(unsafe.Pointer(&bw[0])), len: uint16(len(bw)),
		}
		nmsg++
	}
	if len(br) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: I2C_M_RD,
			buf: uintptr(unsafe.Pointer(&br[0])), len: uint16(len(br)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2c Tx both bw=br=nil nothing to do")
	}

	rdwr_data := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL,
		b.file.Fd(), uintptr(I2C_RDWR), uintptr(unsafe.Pointer(&rdwr_data)))
	if errno != 0 {
		return errors.Annotatef(errno, "i2c tx addr=%02x", addr)
	}
	return nil
}

func (b *devBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false
	return b.file.Close()
}
