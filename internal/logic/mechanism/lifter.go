package mechanism

import (
	"errors"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/motor"
)

// LifterMode is whether the lift is being driven this tick.
type LifterMode int

const (
	LifterIdle LifterMode = iota
	LifterRaising
)

func (m LifterMode) String() string {
	if m == LifterRaising {
		return "raising"
	}
	return "idle"
}

// NextLifterMode is the lifter transition table:
//
//	axis > threshold  -> Raising
//	axis <= threshold -> Idle
func NextLifterMode(axis, threshold float64) LifterMode {
	if axis > threshold {
		return LifterRaising
	}
	return LifterIdle
}

// Lifter drives two lift motors in one direction, proportionally to the
// operator axis.
//
// Below the threshold the motors keep whatever they were last commanded
// unless StopBelowThreshold is set, in which case they get 0 every idle tick.
type Lifter struct {
	left, right        motor.Actuator
	threshold          float64
	modifier           float64
	StopBelowThreshold bool
	mode               LifterMode
}

// NewLifter creates an idle lifter.
func NewLifter(cfg config.LifterConfig, left, right motor.Actuator) *Lifter {
	return &Lifter{
		left:               left,
		right:              right,
		threshold:          cfg.Threshold,
		modifier:           cfg.Modifier,
		StopBelowThreshold: cfg.StopBelowThreshold,
	}
}

// Periodic runs one tick with this tick's axis value.
func (l *Lifter) Periodic(axis float64) error {
	next := NextLifterMode(axis, l.threshold)
	if next != l.mode {
		debug.Live("Lifter mode: %s -> %s", l.mode, next)
		l.mode = next
	}
	switch {
	case next == LifterRaising:
		return l.set(axis * l.modifier)
	case l.StopBelowThreshold:
		return l.set(0)
	}
	return nil
}

// Stop commands both lift motors to zero.
func (l *Lifter) Stop() error {
	return l.set(0)
}

// Mode returns the mode decided on the last tick.
func (l *Lifter) Mode() LifterMode {
	return l.mode
}

func (l *Lifter) set(v float64) error {
	return errors.Join(l.left.SetOutput(v), l.right.SetOutput(v))
}
