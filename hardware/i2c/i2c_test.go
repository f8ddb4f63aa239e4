package i2c

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDevBusString(t *testing.T) {
	t.Parallel()
	b := NewDevBus(1, time.Second)
	assert.Equal(t, "/dev/i2c-1", b.String())
	// never opened
	assert.NoError(t, b.Close())
}

func TestMockBus(t *testing.T) {
	t.Parallel()
	m := NewMockBus(t,
		MockTx{Addr: 0x70, Write: []byte{0x7c, 0xa2}},
		MockTx{Addr: 0x70, Read: []byte{1, 2, 3}},
		MockTx{Addr: 0x70, Write: []byte{0x80}, Err: fmt.Errorf("nack")},
	)
	assert.NoError(t, m.Tx(0x70, []byte{0x7c, 0xa2}, nil))
	buf := make([]byte, 3)
	assert.NoError(t, m.Tx(0x70, nil, buf))
	assert.Equal(t, []byte{1, 2, 3}, buf)
	assert.EqualError(t, m.Tx(0x70, []byte{0x80}, nil), "nack")
	m.ExpectsDone()
}
