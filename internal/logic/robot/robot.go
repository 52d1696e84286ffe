package robot

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/hw/drivetrain"
	"github.com/cjeanneret/holobot/internal/hw/hid"
	"github.com/cjeanneret/holobot/internal/hw/navpod"
	"github.com/cjeanneret/holobot/internal/logic/drive"
	"github.com/cjeanneret/holobot/internal/logic/heading"
	"github.com/cjeanneret/holobot/internal/logic/mechanism"
)

// Deps are the components the robot owns for its whole lifetime.
type Deps struct {
	Tracker    *heading.Tracker
	Builder    *drive.Builder
	Drivetrain drivetrain.Drivetrain
	Shooter    *mechanism.Shooter
	Lifter     *mechanism.Lifter
	Intake     *mechanism.Intake
	HID        hid.Source
	// Diagnostics receives the low-rate heading stream. May be nil.
	Diagnostics func(navpod.Update)
}

// Robot is the periodic entry point: it reads controllers once per tick,
// runs the drive pipeline and the mechanisms in a fixed order, and
// dispatches the results to the actuators.
type Robot struct {
	cfg *config.Config
	Deps

	now        func() time.Time
	autoStart  time.Time
	stopStream func()
	faults     atomic.Uint64
}

func New(cfg *config.Config, d Deps) *Robot {
	return &Robot{cfg: cfg, Deps: d, now: time.Now}
}

// Init configures the sensor pod when it answered, anchors heading and
// position, and starts the diagnostic stream. An absent pod is not an
// error: the robot drives robot-relative for the whole session.
func (r *Robot) Init() error {
	debug.Section("Robot init")
	if !r.Tracker.Valid() {
		debug.Info("navpod absent: heading disabled, drive is robot-relative")
		return nil
	}

	debug.Step(1, "Applying navpod calibration")
	if err := r.Tracker.Configure(r.cfg.Calibration()); err != nil {
		return fmt.Errorf("configure navpod: %w", err)
	}
	if cal, err := r.Tracker.Calibration(); err == nil {
		logCalibration(cal)
	}

	debug.Step(2, "Anchoring heading and position")
	n := r.cfg.NavPod
	if err := r.Tracker.ResetHeading(n.StartupHeadingDeg); err != nil {
		return fmt.Errorf("reset heading: %w", err)
	}
	if err := r.Tracker.ResetPosition(0, 0); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}

	if r.Diagnostics != nil {
		debug.Step(3, "Starting heading diagnostics")
		stop, err := r.Tracker.Subscribe(r.cfg.TelemetryRate(), r.Diagnostics)
		if err != nil {
			return fmt.Errorf("subscribe to navpod: %w", err)
		}
		r.stopStream = stop
	}
	return nil
}

func logCalibration(cal navpod.Calibration) {
	debug.Value("mount angle", fmt.Sprintf("%f", cal.MountAngleDeg))
	debug.Value("field oriented", cal.FieldOriented)
	debug.Value("initial heading", fmt.Sprintf("%f", cal.InitialHeadingDeg))
	debug.Value("mount offset x", fmt.Sprintf("%f in", cal.MountOffsetX))
	debug.Value("mount offset y", fmt.Sprintf("%f in", cal.MountOffsetY))
	debug.Value("rotation scale x", fmt.Sprintf("%f", cal.RotationScaleX))
	debug.Value("rotation scale y", fmt.Sprintf("%f", cal.RotationScaleY))
	debug.Value("translation scale", fmt.Sprintf("%f", cal.TranslationScale))
}

// PeriodicAlways refreshes the cached heading once per tick, in every mode.
func (r *Robot) PeriodicAlways() {
	if r.Tracker.Valid() {
		r.Tracker.Poll()
	}
}

// OnEnterAutonomous restarts the autonomous clock and re-anchors heading.
func (r *Robot) OnEnterAutonomous() {
	r.autoStart = r.now()
	if r.Tracker.Valid() {
		r.fault(r.Tracker.ResetHeading(r.cfg.NavPod.StartupHeadingDeg))
	}
	debug.Info("Autonomous started")
}

// PeriodicAutonomous does not actuate anything.
func (r *Robot) PeriodicAutonomous() {
	debug.Trace("Autonomous elapsed %v", r.AutonomousElapsed())
}

// AutonomousElapsed is the time since the last autonomous entry.
func (r *Robot) AutonomousElapsed() time.Duration {
	if r.autoStart.IsZero() {
		return 0
	}
	return r.now().Sub(r.autoStart)
}

func (r *Robot) OnEnterTeleop() {
	debug.Info("Teleop enabled (field relative: %v)", r.Builder.FieldRelative && r.Tracker.Valid())
}

// PeriodicTeleop samples both controllers once, then drives and runs the
// intake, lifter and shooter in that order.
func (r *Robot) PeriodicTeleop() {
	c := r.cfg
	drv := r.HID.Snapshot(c.HID.DriverIndex)
	op := r.HID.Snapshot(c.HID.OperatorIndex)

	in := drive.Inputs{
		Throttle: drv.Axis(c.Drive.ThrottleAxis),
		X:        drv.Axis(c.Drive.XAxis),
		Y:        drv.Axis(c.Drive.YAxis),
		Z:        drv.Axis(c.Drive.ZAxis),
	}
	speeds := r.Builder.Build(in, r.Tracker.Rotation(), r.Tracker.Valid())
	r.fault(r.Drivetrain.Drive(speeds))

	r.fault(r.Intake.Periodic(op.Button(c.Intake.InButton), op.Button(c.Intake.OutButton)))
	r.fault(r.Lifter.Periodic(op.Axis(c.Lifter.Axis)))
	r.fault(r.Shooter.Periodic(op.Axis(c.Shooter.TriggerAxis), op.Button(c.Shooter.BumperButton)))
}

// OnEnterDisabled stops the chassis and the mechanisms.
func (r *Robot) OnEnterDisabled() {
	r.fault(r.Drivetrain.Drive(drive.ChassisSpeeds{}))
	r.fault(r.Shooter.Stop())
	r.fault(r.Lifter.Stop())
	r.fault(r.Intake.Periodic(false, false))
}

func (r *Robot) PeriodicDisabled() {}

// Faults returns how many actuator commands failed since start.
func (r *Robot) Faults() uint64 {
	return r.faults.Load()
}

func (r *Robot) fault(err error) {
	if err == nil {
		return
	}
	r.faults.Add(1)
	debug.Error(err)
}

// Close stops the diagnostic stream.
func (r *Robot) Close() {
	if r.stopStream != nil {
		r.stopStream()
		r.stopStream = nil
	}
}
