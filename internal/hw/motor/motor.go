package motor

import (
	"math"

	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/gpio"
)

// Actuator is a fire-and-forget motor output. Values are clamped to [-1, 1].
type Actuator interface {
	SetOutput(value float64) error
}

// InvertOutput flips the sign of a commanded output.
func InvertOutput(value float64) float64 {
	return -value
}

// Clamp limits a commanded output to [-1, 1]. NaN maps to 0.
func Clamp(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(-1, math.Min(1, value))
}

type inverted struct {
	a Actuator
}

// Inverted wraps an actuator that is mechanically mirrored, so callers can
// command it with the same sign as its partner.
func Inverted(a Actuator) Actuator {
	return inverted{a: a}
}

func (i inverted) SetOutput(value float64) error {
	return i.a.SetOutput(InvertOutput(value))
}

// Config holds the hardware configuration for a PWM + direction motor channel.
type Config struct {
	Name      string
	PWMPin    int  // PWM output: BCM pin, or board channel. Negative = not wired (output is tracked only).
	DirPin    int  // direction pin (BCM). 0 = not used.
	Inverted  bool // mirror the commanded sign on this channel
	PWMFreqHz int
}

// Motor drives one motor controller: speed as PWM duty, sign on the direction pin.
type Motor struct {
	gpio gpio.Driver
	cfg  Config
	last float64
}

// NewMotor creates a motor controller channel and sets up its pins.
// cfg.PWMFreqHz: if 0, defaults to 1kHz.
func NewMotor(g gpio.Driver, cfg Config) (*Motor, error) {
	if cfg.PWMFreqHz <= 0 {
		cfg.PWMFreqHz = 1000
	}
	if cfg.PWMPin >= 0 {
		if err := g.SetupPWM(cfg.PWMPin, cfg.PWMFreqHz); err != nil {
			return nil, err
		}
	}
	if cfg.DirPin > 0 {
		if err := g.SetupPin(cfg.DirPin, gpio.Output); err != nil {
			return nil, err
		}
	}
	return &Motor{gpio: g, cfg: cfg}, nil
}

// SetOutput commands the motor. The stored output is the logical (pre-inversion) value.
func (m *Motor) SetOutput(value float64) error {
	value = Clamp(value)
	m.last = value

	physical := value
	if m.cfg.Inverted {
		physical = InvertOutput(physical)
	}
	debug.Motor(m.cfg.Name, physical)

	if m.cfg.DirPin > 0 {
		dir := gpio.High
		if physical < 0 {
			dir = gpio.Low
		}
		if err := m.gpio.WritePin(m.cfg.DirPin, dir); err != nil {
			return err
		}
	}
	if m.cfg.PWMPin >= 0 {
		return m.gpio.WritePWM(m.cfg.PWMPin, math.Abs(physical))
	}
	return nil
}

// Stop commands zero output.
func (m *Motor) Stop() error {
	return m.SetOutput(0)
}

// Output returns the last commanded logical output.
func (m *Motor) Output() float64 {
	return m.last
}

// Name returns the configured motor name.
func (m *Motor) Name() string {
	return m.cfg.Name
}
