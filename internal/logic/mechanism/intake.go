package mechanism

import (
	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/hw/motor"
)

// Intake runs a single roller: in while one button is held, out while the
// other is held, stopped otherwise (including when both are held).
type Intake struct {
	roller motor.Actuator
	speed  float64
}

func NewIntake(cfg config.IntakeConfig, roller motor.Actuator) *Intake {
	return &Intake{roller: roller, speed: cfg.Speed}
}

// Periodic runs one tick.
func (i *Intake) Periodic(in, out bool) error {
	switch {
	case in && !out:
		return i.roller.SetOutput(i.speed)
	case out && !in:
		return i.roller.SetOutput(-i.speed)
	}
	return i.roller.SetOutput(0)
}
