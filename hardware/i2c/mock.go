package i2c

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

// MockTx is one expected bus transaction.
type MockTx struct {
	Addr  uint16
	Write []byte
	Read  []byte // copied into br
	Err   error
}

// MockBus replays expected transactions in order, reports mismatch to t.
type MockBus struct {
	t       testing.TB
	mu      sync.Mutex
	expects []MockTx
	index   int
	closed  bool
}

var _ Bus = &MockBus{}

func NewMockBus(t testing.TB, expects ...MockTx) *MockBus {
	return &MockBus{t: t, expects: expects}
}

func (m *MockBus) Expect(txs ...MockTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expects = append(m.expects, txs...)
}

func (m *MockBus) String() string { return "mock" }

func (m *MockBus) Tx(addr uint16, bw []byte, br []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.expects) {
		err := fmt.Errorf("mock i2c unexpected tx addr=%02x write=%x", addr, bw)
		m.t.Error(err)
		return err
	}
	expect := m.expects[m.index]
	m.index++
	if expect.Addr != addr || !bytes.Equal(expect.Write, bw) {
		m.t.Errorf("mock i2c tx #%d expected addr=%02x write=%x actual addr=%02x write=%x",
			m.index, expect.Addr, expect.Write, addr, bw)
	}
	if expect.Err != nil {
		return expect.Err
	}
	copy(br, expect.Read)
	return nil
}

func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ExpectsDone reports unused expectations.
func (m *MockBus) ExpectsDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != len(m.expects) {
		m.t.Errorf("mock i2c expected %d more transactions", len(m.expects)-m.index)
	}
}
