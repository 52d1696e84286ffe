package drivetrain

import (
	"errors"
	"math"
	"sync"

	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/motor"
	"github.com/cjeanneret/holobot/internal/logic/drive"
)

// Drivetrain accepts one chassis command per tick. Last write wins.
type Drivetrain interface {
	Drive(s drive.ChassisSpeeds) error
}

// Wheels groups the four mecanum wheel actuators.
type Wheels struct {
	FrontLeft, FrontRight, BackLeft, BackRight motor.Actuator
}

// Mecanum converts chassis speeds into four wheel outputs.
// It is an intermediate layer between the drive command and the motor channels.
type Mecanum struct {
	wheels     Wheels
	maxLinear  float64
	maxAngular float64

	mu      sync.Mutex // Last/Outputs are read by the web status handlers
	last    drive.ChassisSpeeds
	outputs [4]float64
}

func NewMecanum(w Wheels, maxLinear, maxAngular float64) *Mecanum {
	return &Mecanum{
		wheels:     w,
		maxLinear:  maxLinear,
		maxAngular: maxAngular,
	}
}

// WheelOutputs is the mecanum inverse kinematics, in [-1, 1]:
//
//	fl = vx - vy - ω, fr = vx + vy + ω
//	bl = vx + vy - ω, br = vx - vy + ω
//
// with vx, vy scaled by maxLinear and ω by maxAngular. If any wheel
// exceeds 1 all four are divided by the largest magnitude.
func WheelOutputs(s drive.ChassisSpeeds, maxLinear, maxAngular float64) [4]float64 {
	vx := s.Vx / maxLinear
	vy := s.Vy / maxLinear
	w := s.Omega / maxAngular

	out := [4]float64{
		vx - vy - w,
		vx + vy + w,
		vx + vy - w,
		vx - vy + w,
	}
	peak := 1.0
	for _, v := range out {
		peak = math.Max(peak, math.Abs(v))
	}
	for i := range out {
		out[i] /= peak
	}
	return out
}

// Drive commands all four wheels. Every wheel is commanded even if one fails.
func (m *Mecanum) Drive(s drive.ChassisSpeeds) error {
	out := WheelOutputs(s, m.maxLinear, m.maxAngular)
	debug.Verbose("Drive vx=%.3f vy=%.3f omega=%.3f -> fl=%.3f fr=%.3f bl=%.3f br=%.3f",
		s.Vx, s.Vy, s.Omega, out[0], out[1], out[2], out[3])

	m.mu.Lock()
	m.last = s
	m.outputs = out
	m.mu.Unlock()

	return errors.Join(
		m.wheels.FrontLeft.SetOutput(out[0]),
		m.wheels.FrontRight.SetOutput(out[1]),
		m.wheels.BackLeft.SetOutput(out[2]),
		m.wheels.BackRight.SetOutput(out[3]),
	)
}

// Last returns the last commanded chassis speeds.
func (m *Mecanum) Last() drive.ChassisSpeeds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Outputs returns the last wheel outputs (fl, fr, bl, br).
func (m *Mecanum) Outputs() [4]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs
}
