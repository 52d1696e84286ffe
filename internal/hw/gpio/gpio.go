package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/holobot/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver drives the digital pins and hardware PWM channels of the motor
// controllers, on the Raspberry Pi or simulated on a PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetupPWM configures a hardware PWM output at freqHz: a BCM pin, or
	// a board channel behind a BoardDriver.
	SetupPWM(pin int, freqHz int) error
	// WritePWM sets the duty cycle in [0, 1].
	WritePWM(pin int, duty float64) error
	Close() error
}

// pwmChannel maps the BCM pins wired to the BCM283x PWM peripheral to its
// two channels. Pins on the same channel always carry the same duty.
var pwmChannel = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

type pinUse int

const (
	useDigital pinUse = iota + 1
	usePWM
)

// pinTable records what each BCM pin was claimed for, so a config that wires
// one pin to two functions fails at startup rather than fighting at runtime.
type pinTable map[int]pinUse

func (t pinTable) claim(pin int, u pinUse) error {
	if pin < 0 || pin > 27 {
		return fmt.Errorf("pin %d is not a BCM GPIO (0-27)", pin)
	}
	if prev, ok := t[pin]; ok && prev != u {
		return fmt.Errorf("pin %d already used as %s", pin, prev)
	}
	if u == usePWM {
		ch, ok := pwmChannel[pin]
		if !ok {
			return fmt.Errorf("pin %d has no hardware PWM (use 12, 13, 18 or 19)", pin)
		}
		for other, use := range t {
			if other != pin && use == usePWM && pwmChannel[other] == ch {
				return fmt.Errorf("pin %d shares PWM channel %d with pin %d", pin, ch, other)
			}
		}
	}
	t[pin] = u
	return nil
}

func (u pinUse) String() string {
	if u == usePWM {
		return "PWM"
	}
	return "digital"
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

// MockDriver simulates the Pi: it applies the same pin checks as the real
// driver and remembers the last level and duty written to each pin.
// The zero value is ready to use.
type MockDriver struct {
	mu     sync.Mutex
	uses   pinTable
	levels map[int]Level
	duties map[int]float64
}

func (m *MockDriver) init() {
	if m.uses == nil {
		m.uses = pinTable{}
		m.levels = map[int]Level{}
		m.duties = map[int]float64{}
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return m.uses.claim(pin, useDigital)
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if err := m.uses.claim(pin, useDigital); err != nil {
		return err
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if err := m.uses.claim(pin, useDigital); err != nil {
		return Low, err
	}
	return m.levels[pin], nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if err := m.uses.claim(pin, usePWM); err != nil {
		return err
	}
	m.duties[pin] = 0
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty float64) error {
	debug.GPIO("WritePWM", pin, duty)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.duties[pin]; !ok {
		return fmt.Errorf("pin %d not set up for PWM", pin)
	}
	m.duties[pin] = ClampDuty(duty)
	return nil
}

// Duty returns the last duty cycle written to a PWM pin.
func (m *MockDriver) Duty(pin int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duties[pin]
}

// Level returns the last level written to a digital pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Close zeroes every PWM output, like the real driver.
func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	defer m.mu.Unlock()
	for pin := range m.duties {
		m.duties[pin] = 0
	}
	return nil
}

// ClampDuty limits a duty cycle to [0, 1]. NaN maps to 0.
func ClampDuty(duty float64) float64 {
	if !(duty > 0) {
		return 0
	}
	if duty > 1 {
		return 1
	}
	return duty
}
