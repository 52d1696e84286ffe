package drive

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/logic/shaping"
)

// ChassisSpeeds is a robot-relative velocity command for one tick.
type ChassisSpeeds struct {
	Vx    float64 `json:"vx"`    // forward, m/s
	Vy    float64 `json:"vy"`    // left, m/s
	Omega float64 `json:"omega"` // counter-clockwise, rad/s
}

// Inputs holds the raw driver axes sampled this tick.
type Inputs struct {
	Throttle float64
	X        float64 // forward/back (stick Y, forward is negative)
	Y        float64 // strafe (stick X)
	Z        float64 // twist
}

// Throttle maps a trigger-style axis to a [0, 1] scalar.
// Formula: raw × -0.5 + 0.5 (resting at -1 gives full throttle)
func Throttle(raw float64) float64 {
	return raw*-0.5 + 0.5
}

// Builder turns driver axes into chassis speeds.
type Builder struct {
	Deadband      float64
	MaxLinear     float64 // m/s
	MaxAngular    float64 // rad/s
	FieldRelative bool
}

// NewBuilder creates a builder from the drive configuration.
func NewBuilder(cfg config.DriveConfig) (*Builder, error) {
	b := &Builder{
		Deadband:      cfg.Deadband,
		MaxLinear:     cfg.MaxLinearMps,
		MaxAngular:    cfg.MaxAngularRps,
		FieldRelative: cfg.FieldRelative,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate rejects limits that would make every command zero or NaN.
func (b *Builder) Validate() error {
	if err := shaping.ValidateDeadband(b.Deadband); err != nil {
		return err
	}
	if math.IsNaN(b.MaxLinear) || math.IsInf(b.MaxLinear, 0) || b.MaxLinear <= 0 {
		return fmt.Errorf("max linear velocity must be > 0, got %g", b.MaxLinear)
	}
	if math.IsNaN(b.MaxAngular) || math.IsInf(b.MaxAngular, 0) || b.MaxAngular <= 0 {
		return fmt.Errorf("max angular velocity must be > 0, got %g", b.MaxAngular)
	}
	return nil
}

// Build shapes each axis, inverts it, scales it by throttle and the chassis
// limits. With FieldRelative set and a heading available the linear part is
// rotated into the robot frame; otherwise the command stays robot-relative.
func (b *Builder) Build(in Inputs, heading s1.Angle, haveHeading bool) ChassisSpeeds {
	t := Throttle(in.Throttle)
	x := t * -shaping.Shape(in.X, b.Deadband)
	y := t * -shaping.Shape(in.Y, b.Deadband)
	z := t * -shaping.Shape(in.Z, b.Deadband)

	vx := x * b.MaxLinear
	vy := y * b.MaxLinear
	omega := z * b.MaxAngular
	if b.FieldRelative && haveHeading {
		return FromFieldRelative(vx, vy, omega, heading)
	}
	return ChassisSpeeds{Vx: vx, Vy: vy, Omega: omega}
}

// FromFieldRelative converts a field-frame velocity to the robot frame by
// rotating (vx, vy) by -heading.
// Formula: vx' = vx cos θ + vy sin θ, vy' = -vx sin θ + vy cos θ
func FromFieldRelative(vx, vy, omega float64, heading s1.Angle) ChassisSpeeds {
	theta := heading.Radians()
	p := r2.Point{X: vx, Y: vy}
	r := p.Mul(math.Cos(theta)).Sub(p.Ortho().Mul(math.Sin(theta)))
	return ChassisSpeeds{Vx: r.X, Vy: r.Y, Omega: omega}
}
