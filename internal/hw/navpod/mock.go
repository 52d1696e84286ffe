package navpod

import (
	"sync"
	"time"

	"github.com/cjeanneret/holobot/internal/debug"
)

// MockDevice is an in-memory pod used for development on PC and in tests.
// Resets are reflected synchronously by the next Poll.
type MockDevice struct {
	mu     sync.Mutex
	valid  bool
	cal    Calibration
	state  Update
	misses int
	closed bool
}

// NewMockDevice returns a pod that answers validity checks with valid.
func NewMockDevice(valid bool) *MockDevice {
	debug.Info("Using MOCK navpod (valid=%v)", valid)
	return &MockDevice{valid: valid}
}

func (m *MockDevice) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid && !m.closed
}

func (m *MockDevice) SetCalibration(cal Calibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.cal = cal.Normalized()
	m.state.H = cal.InitialHeadingDeg
	m.state.SH = cal.InitialHeadingDeg
	return nil
}

func (m *MockDevice) Calibration() Calibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal
}

func (m *MockDevice) ResetHeading(h float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.state.H = h
	m.state.SH = h
	return nil
}

func (m *MockDevice) ResetPosition(x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.state.X, m.state.SX = x, x
	m.state.Y, m.state.SY = y, y
	return nil
}

// Push injects an update as if the pod had just sent it.
func (m *MockDevice) Push(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = u
}

// Miss makes the next n polls report no new data.
func (m *MockDevice) Miss(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses = n
}

// Poll returns the current state. A stationary mock never reads as stale.
func (m *MockDevice) Poll() (Update, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Update{}, false, ErrClosed
	}
	if m.misses > 0 {
		m.misses--
		return m.state, false, nil
	}
	return m.state, true, nil
}

func (m *MockDevice) Subscribe(rate time.Duration, fn func(Update)) (func(), error) {
	return stream(rate, func() (Update, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.state, !m.closed
	}, fn)
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
