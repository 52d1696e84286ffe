package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/holobot/internal/debug"
	"periph.io/x/conn/v3/physic"
)

// MockBus is an in-memory I2C bus. Each address is a 256-byte register
// file with auto-increment: a write starts with the register number, a read
// continues from it. The zero value is ready to use.
type MockBus struct {
	mu   sync.Mutex
	regs map[uint16]*[256]byte
	// Fail makes every transaction return an error.
	Fail bool
}

func (b *MockBus) String() string { return "mock-i2c" }

func (b *MockBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail {
		return fmt.Errorf("i2c %#x: no ack", addr)
	}
	if len(w) == 0 {
		return fmt.Errorf("i2c %#x: empty write", addr)
	}
	if b.regs == nil {
		b.regs = map[uint16]*[256]byte{}
	}
	file, ok := b.regs[addr]
	if !ok {
		file = &[256]byte{}
		b.regs[addr] = file
	}
	reg := w[0]
	for _, v := range w[1:] {
		file[reg] = v
		reg++
	}
	for i := range r {
		r[i] = file[reg]
		reg++
	}
	debug.Trace("I2C %#x write % x read %d", addr, w, len(r))
	return nil
}

func (b *MockBus) SetSpeed(physic.Frequency) error { return nil }

func (b *MockBus) Close() error { return nil }

// Reg returns the last value written to register reg at addr.
func (b *MockBus) Reg(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if file, ok := b.regs[addr]; ok {
		return file[reg]
	}
	return 0
}
