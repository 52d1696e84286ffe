package mechanism

import (
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/hw/motor"
)

// recordingActuator stores every command it receives.
type recordingActuator struct {
	outputs []float64
	err     error
}

func (a *recordingActuator) SetOutput(v float64) error {
	a.outputs = append(a.outputs, v)
	return a.err
}

func (a *recordingActuator) last() float64 {
	if len(a.outputs) == 0 {
		return math.NaN()
	}
	return a.outputs[len(a.outputs)-1]
}

func newTestShooter() (*Shooter, *recordingActuator, *recordingActuator) {
	left, right := &recordingActuator{}, &recordingActuator{}
	s := NewShooter(config.Default().Shooter, motor.Inverted(left), right)
	return s, left, right
}

func newTestLifter(stopBelow bool) (*Lifter, *recordingActuator, *recordingActuator) {
	left, right := &recordingActuator{}, &recordingActuator{}
	cfg := config.Default().Lifter
	cfg.StopBelowThreshold = stopBelow
	return NewLifter(cfg, left, right), left, right
}

// ---------- Shooter ----------

func TestShooter_Periodic(t *testing.T) {
	cases := []struct {
		name      string
		trigger   float64
		bumper    bool
		wantRight float64
		wantMode  ShooterMode
	}{
		{"trigger_with_bumper_high", 0.25, true, 0.70, ShooterHigh},
		{"trigger_without_bumper_low", 0.25, false, 0.25, ShooterLow},
		{"trigger_below_threshold", 0.1, true, 0, ShooterHigh},
		{"trigger_at_threshold", 0.2, false, 0, ShooterLow},
		{"full_trigger", 1.0, false, 0.25, ShooterLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, left, right := newTestShooter()
			if err := s.Periodic(tc.trigger, tc.bumper); err != nil {
				t.Fatalf("Periodic: %v", err)
			}
			if right.last() != tc.wantRight {
				t.Errorf("right = %v, want %v", right.last(), tc.wantRight)
			}
			if left.last() != -tc.wantRight {
				t.Errorf("left = %v, want mirrored %v", left.last(), -tc.wantRight)
			}
			if s.Mode() != tc.wantMode {
				t.Errorf("mode = %v, want %v", s.Mode(), tc.wantMode)
			}
		})
	}
}

func TestShooter_ModeIsLevelTriggered(t *testing.T) {
	s, _, right := newTestShooter()
	steps := []struct {
		bumper bool
		want   float64
	}{
		{false, 0.25},
		{true, 0.70},
		{true, 0.70},
		{false, 0.25},
		{true, 0.70},
	}
	for i, st := range steps {
		if err := s.Periodic(0.9, st.bumper); err != nil {
			t.Fatal(err)
		}
		if right.last() != st.want {
			t.Errorf("tick %d (bumper=%v): output %v, want %v", i, st.bumper, right.last(), st.want)
		}
	}
}

func TestShooter_ForceRunAndStop(t *testing.T) {
	s, left, right := newTestShooter()
	if err := s.ForceRun(); err != nil {
		t.Fatal(err)
	}
	if right.last() != 0.70 || left.last() != -0.70 {
		t.Errorf("ForceRun = %v/%v, want -0.70/0.70", left.last(), right.last())
	}
	if s.Mode() != ShooterLow {
		t.Errorf("ForceRun should not change mode, got %v", s.Mode())
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if right.last() != 0 || left.last() != 0 {
		t.Errorf("Stop = %v/%v, want 0/0", left.last(), right.last())
	}
}

func TestShooter_ActuatorErrorsJoined(t *testing.T) {
	left := &recordingActuator{err: errors.New("left stalled")}
	right := &recordingActuator{}
	s := NewShooter(config.Default().Shooter, left, right)
	if err := s.Periodic(1, false); err == nil {
		t.Fatal("expected actuator error")
	}
	if len(right.outputs) != 1 {
		t.Error("right actuator should still be commanded when left fails")
	}
}

func TestNextShooterMode(t *testing.T) {
	if NextShooterMode(true) != ShooterHigh || NextShooterMode(false) != ShooterLow {
		t.Error("transition table mismatch")
	}
	if ShooterHigh.String() != "high" || ShooterLow.String() != "low" {
		t.Error("unexpected mode names")
	}
}

// ---------- Lifter ----------

func TestLifter_AboveThreshold(t *testing.T) {
	l, left, right := newTestLifter(false)
	if err := l.Periodic(0.3); err != nil {
		t.Fatal(err)
	}
	for name, a := range map[string]*recordingActuator{"left": left, "right": right} {
		if math.Abs(a.last()-0.15) > 1e-12 {
			t.Errorf("%s = %v, want 0.15", name, a.last())
		}
	}
	if l.Mode() != LifterRaising {
		t.Errorf("mode = %v, want raising", l.Mode())
	}
}

func TestLifter_HoldsLastCommandBelowThreshold(t *testing.T) {
	l, left, right := newTestLifter(false)
	_ = l.Periodic(0.3)
	before := len(left.outputs)

	// Motors keep running at 0.15: no stop command is issued below threshold.
	if err := l.Periodic(0.05); err != nil {
		t.Fatal(err)
	}
	if len(left.outputs) != before || len(right.outputs) != before {
		t.Errorf("no new command expected, got left=%v right=%v", left.outputs, right.outputs)
	}
	if math.Abs(left.last()-0.15) > 1e-12 {
		t.Errorf("left last = %v, want held 0.15", left.last())
	}
	if l.Mode() != LifterIdle {
		t.Errorf("mode = %v, want idle", l.Mode())
	}
}

func TestLifter_StopBelowThreshold(t *testing.T) {
	l, left, right := newTestLifter(true)
	_ = l.Periodic(0.3)
	if err := l.Periodic(0.05); err != nil {
		t.Fatal(err)
	}
	if left.last() != 0 || right.last() != 0 {
		t.Errorf("stop variant = %v/%v, want 0/0", left.last(), right.last())
	}
}

func TestLifter_Stop(t *testing.T) {
	l, left, right := newTestLifter(false)
	_ = l.Periodic(0.6)
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if left.last() != 0 || right.last() != 0 {
		t.Errorf("Stop = %v/%v, want 0/0", left.last(), right.last())
	}
}

func TestLifter_UsesCurrentAxisEveryTick(t *testing.T) {
	l, left, _ := newTestLifter(false)
	for _, axis := range []float64{0.2, 0.8, 1.0} {
		_ = l.Periodic(axis)
		if math.Abs(left.last()-axis*0.5) > 1e-12 {
			t.Errorf("axis %v: output %v, want %v", axis, left.last(), axis*0.5)
		}
	}
}

func TestNextLifterMode(t *testing.T) {
	cases := []struct {
		axis float64
		want LifterMode
	}{
		{0.1, LifterIdle},
		{0.11, LifterRaising},
		{-1, LifterIdle},
		{1, LifterRaising},
	}
	for _, tc := range cases {
		if got := NextLifterMode(tc.axis, 0.1); got != tc.want {
			t.Errorf("NextLifterMode(%v) = %v, want %v", tc.axis, got, tc.want)
		}
	}
}

// ---------- Intake ----------

func TestIntake_Periodic(t *testing.T) {
	cases := []struct {
		name    string
		in, out bool
		want    float64
	}{
		{"in", true, false, 0.6},
		{"out", false, true, -0.6},
		{"both", true, true, 0},
		{"none", false, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roller := &recordingActuator{}
			i := NewIntake(config.Default().Intake, roller)
			if err := i.Periodic(tc.in, tc.out); err != nil {
				t.Fatal(err)
			}
			if roller.last() != tc.want {
				t.Errorf("roller = %v, want %v", roller.last(), tc.want)
			}
		})
	}
}
