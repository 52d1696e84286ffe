package host

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/holobot/internal/debug"
)

// Mode is the robot-wide operating mode.
type Mode int

const (
	Disabled Mode = iota
	Autonomous
	Teleop
)

func (m Mode) String() string {
	switch m {
	case Autonomous:
		return "autonomous"
	case Teleop:
		return "teleop"
	default:
		return "disabled"
	}
}

// ParseMode accepts "disabled", "autonomous" (or "auto") and "teleop".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return Disabled, nil
	case "autonomous", "auto":
		return Autonomous, nil
	case "teleop":
		return Teleop, nil
	}
	return Disabled, fmt.Errorf("unknown mode %q (want disabled, autonomous or teleop)", s)
}

// Lifecycle is implemented by the robot. The scheduler calls the hooks from
// a single goroutine, never concurrently.
type Lifecycle interface {
	Init() error
	PeriodicAlways()
	OnEnterAutonomous()
	PeriodicAutonomous()
	OnEnterTeleop()
	PeriodicTeleop()
	OnEnterDisabled()
	PeriodicDisabled()
}

// Scheduler drives a Lifecycle at a fixed period. Mode changes requested
// from other goroutines take effect at the next tick.
type Scheduler struct {
	robot  Lifecycle
	period time.Duration

	mu        sync.Mutex
	requested Mode
	current   Mode
	entered   bool
	listeners []func(from, to Mode)
	ticks     uint64
	overruns  uint64
}

// NewScheduler creates a scheduler that starts disabled.
func NewScheduler(robot Lifecycle, period time.Duration) *Scheduler {
	return &Scheduler{robot: robot, period: period}
}

// RequestMode asks for a mode change at the next tick.
func (s *Scheduler) RequestMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = m
}

// Mode returns the mode whose hooks ran on the last tick.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnModeChange registers fn to be called after each mode transition.
// fn runs on the scheduler goroutine and must not block.
func (s *Scheduler) OnModeChange(fn func(from, to Mode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Stats returns the tick count and how many ticks overran the period.
func (s *Scheduler) Stats() (ticks, overruns uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks, s.overruns
}

// Step runs one tick: the OnEnter hook if the mode changed, then
// PeriodicAlways, then the periodic hook of the current mode.
func (s *Scheduler) Step() {
	s.mu.Lock()
	next := s.requested
	changed := !s.entered || next != s.current
	from := s.current
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		switch next {
		case Autonomous:
			s.robot.OnEnterAutonomous()
		case Teleop:
			s.robot.OnEnterTeleop()
		default:
			s.robot.OnEnterDisabled()
		}
		s.mu.Lock()
		s.current = next
		s.entered = true
		s.mu.Unlock()
		debug.Mode(from.String(), next.String())
		for _, fn := range listeners {
			fn(from, next)
		}
	}

	s.robot.PeriodicAlways()
	switch next {
	case Autonomous:
		s.robot.PeriodicAutonomous()
	case Teleop:
		s.robot.PeriodicTeleop()
	default:
		s.robot.PeriodicDisabled()
	}

	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

// Run initializes the robot and ticks until ctx is cancelled, then
// disables the robot once more before returning ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.robot.Init(); err != nil {
		return fmt.Errorf("robot init: %w", err)
	}
	debug.Info("Control loop running every %v", s.period)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		start := time.Now()
		s.Step()
		if elapsed := time.Since(start); elapsed > s.period {
			s.mu.Lock()
			s.overruns++
			s.mu.Unlock()
			debug.Live("Loop overrun: tick took %v (period %v)", elapsed, s.period)
		}

		select {
		case <-ctx.Done():
			s.robot.OnEnterDisabled()
			debug.Info("Control loop stopped, robot disabled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
