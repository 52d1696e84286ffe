package mechanism

import (
	"errors"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/motor"
)

// ShooterMode selects the shooter speed preset.
type ShooterMode int

const (
	ShooterLow ShooterMode = iota
	ShooterHigh
)

func (m ShooterMode) String() string {
	if m == ShooterHigh {
		return "high"
	}
	return "low"
}

// NextShooterMode is the shooter transition table. It is level triggered:
//
//	bumper held     -> High
//	bumper released -> Low
//
// whatever the previous mode was.
func NextShooterMode(bumper bool) ShooterMode {
	if bumper {
		return ShooterHigh
	}
	return ShooterLow
}

// Shooter spins two flywheels at one of two presets while the trigger is pulled.
// Mirroring between the wheels belongs to the actuators, so both get the
// same command here.
type Shooter struct {
	left, right motor.Actuator
	threshold   float64
	low, high   float64
	mode        ShooterMode
}

// NewShooter creates a shooter in low mode.
func NewShooter(cfg config.ShooterConfig, left, right motor.Actuator) *Shooter {
	return &Shooter{
		left:      left,
		right:     right,
		threshold: cfg.TriggerThreshold,
		low:       cfg.LowSpeed,
		high:      cfg.HighSpeed,
		mode:      ShooterLow,
	}
}

// Periodic runs one tick. The mode follows the bumper before the trigger is
// read, so holding both selects high speed on the same tick.
func (s *Shooter) Periodic(trigger float64, bumper bool) error {
	next := NextShooterMode(bumper)
	if next != s.mode {
		debug.Live("Shooter mode: %s -> %s", s.mode, next)
		s.mode = next
	}
	if trigger > s.threshold {
		return s.set(s.speed())
	}
	return s.Stop()
}

// ForceRun spins at high speed regardless of trigger and mode.
func (s *Shooter) ForceRun() error {
	return s.set(s.high)
}

// Stop commands both wheels to zero.
func (s *Shooter) Stop() error {
	return s.set(0)
}

// Mode returns the current speed preset.
func (s *Shooter) Mode() ShooterMode {
	return s.mode
}

func (s *Shooter) speed() float64 {
	if s.mode == ShooterHigh {
		return s.high
	}
	return s.low
}

func (s *Shooter) set(v float64) error {
	return errors.Join(s.left.SetOutput(v), s.right.SetOutput(v))
}
