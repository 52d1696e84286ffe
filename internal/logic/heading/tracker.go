package heading

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/s1"

	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/navpod"
)

var (
	ErrDeviceAbsent      = errors.New("heading: sensor device absent")
	ErrNotConfigured     = errors.New("heading: calibration not applied")
	ErrAlreadyConfigured = errors.New("heading: calibration already applied")
)

// State is the tracker's view of where the robot is and which way it faces.
type State struct {
	HeadingDeg float64 `json:"heading_deg"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Valid      bool    `json:"valid"` // false when the sensor device is absent
	Stale      bool    `json:"stale"` // last poll missed; values are from an earlier tick
}

// Tracker owns the sensor device and the only heading/position state in the robot.
// It is not safe for concurrent use: only the control loop calls it.
type Tracker struct {
	dev        navpod.Device
	valid      bool
	configured bool
	state      State
}

// NewTracker wraps dev. A nil device, or one that failed its validity
// check, yields a tracker whose operations are no-ops.
func NewTracker(dev navpod.Device) *Tracker {
	valid := dev != nil && dev.IsValid()
	return &Tracker{
		dev:   dev,
		valid: valid,
		state: State{Valid: valid},
	}
}

// Valid reports whether the device responded at initialization.
func (t *Tracker) Valid() bool {
	return t.valid
}

// Configure applies cal to the device. It may succeed only once per session.
func (t *Tracker) Configure(cal navpod.Calibration) error {
	if !t.valid {
		return ErrDeviceAbsent
	}
	if t.configured {
		return ErrAlreadyConfigured
	}
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("invalid calibration: %w", err)
	}
	if err := t.dev.SetCalibration(cal); err != nil {
		return fmt.Errorf("apply calibration: %w", err)
	}
	t.configured = true
	t.state.HeadingDeg = cal.InitialHeadingDeg
	return nil
}

// Calibration returns what the device reports as applied.
func (t *Tracker) Calibration() (navpod.Calibration, error) {
	if err := t.ready(); err != nil {
		return navpod.Calibration{}, err
	}
	return t.dev.Calibration(), nil
}

func (t *Tracker) ready() error {
	if !t.valid {
		return ErrDeviceAbsent
	}
	if !t.configured {
		return ErrNotConfigured
	}
	return nil
}

// ResetHeading re-anchors the heading to h degrees.
func (t *Tracker) ResetHeading(h float64) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := t.dev.ResetHeading(h); err != nil {
		return err
	}
	t.state.HeadingDeg = h
	t.state.Stale = false
	debug.Live("Heading reset to %.1f", h)
	return nil
}

// ResetPosition sets the current position.
func (t *Tracker) ResetPosition(x, y float64) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := t.dev.ResetPosition(x, y); err != nil {
		return err
	}
	t.state.X = x
	t.state.Y = y
	t.state.Stale = false
	debug.Live("Position reset to (%.2f, %.2f)", x, y)
	return nil
}

// Poll reads the device once and returns the refreshed state. A read miss
// or device error keeps the cached values and marks them stale.
func (t *Tracker) Poll() State {
	if t.ready() != nil {
		return t.state
	}
	u, ok, err := t.dev.Poll()
	if err != nil {
		debug.Trace("navpod poll: %v", err)
	}
	if err != nil || !ok {
		t.state.Stale = true
		return t.state
	}
	t.state = State{HeadingDeg: u.H, X: u.X, Y: u.Y, Valid: true}
	return t.state
}

// Snapshot returns the cached state without touching the device.
func (t *Tracker) Snapshot() State {
	return t.state
}

// Rotation returns the heading as an angle in (-π, π], continuous across
// the 0/360 wrap.
func (t *Tracker) Rotation() s1.Angle {
	return (s1.Angle(t.state.HeadingDeg) * s1.Degree).Normalized()
}

// Subscribe streams full device updates every rate for diagnostics.
// fn runs on the device goroutine; a panic in it is logged and swallowed.
func (t *Tracker) Subscribe(rate time.Duration, fn func(navpod.Update)) (func(), error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	return t.dev.Subscribe(rate, func(u navpod.Update) {
		defer func() {
			if r := recover(); r != nil {
				debug.Error(fmt.Errorf("heading subscriber panicked: %v", r))
			}
		}()
		fn(u)
	})
}
