package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/host"
	"github.com/cjeanneret/holobot/internal/hw/drivetrain"
	"github.com/cjeanneret/holobot/internal/hw/gpio"
	"github.com/cjeanneret/holobot/internal/hw/hid"
	"github.com/cjeanneret/holobot/internal/hw/motor"
	"github.com/cjeanneret/holobot/internal/hw/navpod"
	"github.com/cjeanneret/holobot/internal/logic/drive"
	"github.com/cjeanneret/holobot/internal/logic/heading"
	"github.com/cjeanneret/holobot/internal/logic/mechanism"
	"github.com/cjeanneret/holobot/internal/logic/robot"
	"github.com/cjeanneret/holobot/internal/telemetry"
	"github.com/cjeanneret/holobot/internal/web"
)

// cliOverrides holds command-line values that replace config entries.
// Nil pointers and negative numbers mean "use config".
type cliOverrides struct {
	Deadband      float64
	DebugLevel    int
	TickMs        int
	MockHW        *bool
	FieldRelative *bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start driver-station server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	deadband := flag.Float64("deadband", -1, "override driver stick deadband in [0, 1)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	tickMs := flag.Int("tick_ms", -1, "override control loop period in ms (1-1000)")
	mock := flag.Bool("mock", false, "use mock GPIO and a mock navpod")
	fieldRelative := flag.Bool("field_relative", false, "rotate drive commands by the robot heading")
	startMode := flag.String("mode", "disabled", "mode on startup: disabled, autonomous or teleop")
	flag.Parse()

	o := cliOverrides{Deadband: *deadband, DebugLevel: *debugLevel, TickMs: *tickMs}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mock":
			o.MockHW = mock
		case "field_relative":
			o.FieldRelative = fieldRelative
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid -config: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateCLIOverrides(o); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, o)
	mode, err := web.ValidateMode(*startMode)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	if cfg.Defaults.LogFile != "" {
		debug.InitFile(cfg.Defaults.LogFile, cfg.Defaults.LogMaxSizeMB, cfg.Defaults.LogMaxBackups)
	}
	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Field relative", cfg.Drive.FieldRelative)

	if err := run(ctx, cfg, mode, webPort.port(), broadcaster); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("holobot: %v", err)
	}
	debug.Info("Shutdown complete")
}

// run builds the robot from cfg and drives it until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, mode host.Mode, port int, broadcaster *web.StatusBroadcaster) error {
	debug.Value("Mock hardware", cfg.Defaults.MockHW)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing drivetrain and mechanisms")
	dt, err := buildDrivetrain(gpioDriver, cfg)
	if err != nil {
		return err
	}
	shooter, lifter, intake, err := buildMechanisms(gpioDriver, cfg)
	if err != nil {
		return err
	}
	builder, err := drive.NewBuilder(cfg.Drive)
	if err != nil {
		return err
	}

	debug.Step(3, "Opening navpod")
	dev := openNavPod(cfg)
	if dev != nil {
		defer dev.Close()
	}
	tracker := heading.NewTracker(dev)

	debug.Step(4, "Starting telemetry")
	stream := telemetry.NewStream(newPublisher(cfg), cfg.Telemetry.TopicPrefix)
	defer stream.Close()
	if broadcaster != nil {
		stream.AddSink(broadcaster.Telemetry)
	}

	// Controllers come from the driver station; without it every input is neutral.
	var (
		source     hid.Source = hid.NewStatic()
		controller *hid.WebSocketSource
	)
	if port > 0 {
		controller = hid.NewWebSocketSource(cfg.StaleAfter())
		source = controller
	}

	bot := robot.New(cfg, robot.Deps{
		Tracker:     tracker,
		Builder:     builder,
		Drivetrain:  dt,
		Shooter:     shooter,
		Lifter:      lifter,
		Intake:      intake,
		HID:         source,
		Diagnostics: stream.OnUpdate,
	})
	defer bot.Close()

	sched := host.NewScheduler(bot, cfg.TickPeriod())
	sched.OnModeChange(stream.ModeChanged)
	sched.RequestMode(mode)
	debug.Value("Startup mode", mode)

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	if port > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), web.Deps{
			Broadcaster: broadcaster,
			Modes:       sched,
			Config:      web.NewConfigView(cfg),
			Heading:     stream.Latest,
			Status: func() web.Status {
				ticks, overruns := sched.Stats()
				return web.Status{
					Mode:          sched.Mode().String(),
					Chassis:       dt.Last(),
					Wheels:        dt.Outputs(),
					Faults:        bot.Faults(),
					Ticks:         ticks,
					Overruns:      overruns,
					DriverStation: controller.Connected(),
				}
			},
			Controller: controller,
		})
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// a server that cannot listen stops the robot
			if err := srv.Run(loopCtx); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
				stop()
			}
		}()
	}

	debug.Section("Control loop")
	err = sched.Run(loopCtx)
	stop()
	wg.Wait()
	select {
	case werr := <-errCh:
		return werr
	default:
	}
	return err
}

// newDriver opens the Pi pins and, when a PWM board is configured, routes
// every PWM output to it.
func newDriver(cfg *config.Config) (gpio.Driver, error) {
	pins, err := gpio.NewDriver(cfg.Defaults.MockHW)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	if cfg.Defaults.PWMBoard == "" {
		return pins, nil
	}
	bus, err := gpio.OpenI2C(cfg.Defaults.MockHW, cfg.Defaults.I2CBus)
	if err != nil {
		pins.Close()
		return nil, fmt.Errorf("init PWM board: %w", err)
	}
	board, err := gpio.NewPCA9685(bus, uint16(cfg.Defaults.PWMBoardAddr))
	if err != nil {
		bus.Close()
		pins.Close()
		return nil, fmt.Errorf("init PWM board: %w", err)
	}
	return gpio.NewBoardDriver(pins, board, bus), nil
}

// buildDrivetrain creates the four wheel motors and the mecanum drive.
func buildDrivetrain(g gpio.Driver, cfg *config.Config) (*drivetrain.Mecanum, error) {
	d := cfg.Drivetrain
	fl, err := newMotor(g, "front-left", d.FrontLeft, cfg.Defaults.PWMFreqHz)
	if err != nil {
		return nil, err
	}
	fr, err := newMotor(g, "front-right", d.FrontRight, cfg.Defaults.PWMFreqHz)
	if err != nil {
		return nil, err
	}
	bl, err := newMotor(g, "back-left", d.BackLeft, cfg.Defaults.PWMFreqHz)
	if err != nil {
		return nil, err
	}
	br, err := newMotor(g, "back-right", d.BackRight, cfg.Defaults.PWMFreqHz)
	if err != nil {
		return nil, err
	}
	return drivetrain.NewMecanum(drivetrain.Wheels{
		FrontLeft:  fl,
		FrontRight: fr,
		BackLeft:   bl,
		BackRight:  br,
	}, cfg.Drive.MaxLinearMps, cfg.Drive.MaxAngularRps), nil
}

// buildMechanisms creates the shooter, lifter and intake with their motors.
func buildMechanisms(g gpio.Driver, cfg *config.Config) (*mechanism.Shooter, *mechanism.Lifter, *mechanism.Intake, error) {
	freq := cfg.Defaults.PWMFreqHz
	motors := []struct {
		name string
		mc   config.MotorConfig
	}{
		{"shooter-left", cfg.Shooter.LeftMotor},
		{"shooter-right", cfg.Shooter.RightMotor},
		{"lifter-left", cfg.Lifter.LeftMotor},
		{"lifter-right", cfg.Lifter.RightMotor},
		{"intake", cfg.Intake.Motor},
	}
	built := make([]*motor.Motor, len(motors))
	for i, m := range motors {
		mt, err := newMotor(g, m.name, m.mc, freq)
		if err != nil {
			return nil, nil, nil, err
		}
		built[i] = mt
	}
	return mechanism.NewShooter(cfg.Shooter, built[0], built[1]),
		mechanism.NewLifter(cfg.Lifter, built[2], built[3]),
		mechanism.NewIntake(cfg.Intake, built[4]),
		nil
}

func newMotor(g gpio.Driver, name string, mc config.MotorConfig, freqHz int) (*motor.Motor, error) {
	m, err := motor.NewMotor(g, motor.Config{
		Name:      name,
		PWMPin:    mc.PWMPin,
		DirPin:    mc.DirPin,
		Inverted:  mc.Inverted,
		PWMFreqHz: freqHz,
	})
	if err != nil {
		return nil, fmt.Errorf("init motor %s: %w", name, err)
	}
	debug.PrintStruct("Motor "+name, mc)
	return m, nil
}

// openNavPod opens the configured sensor pod. A pod that does not answer
// is reported and treated as absent (nil): the robot then drives
// robot-relative.
func openNavPod(cfg *config.Config) navpod.Device {
	if cfg.Defaults.MockHW || cfg.NavPod.Type == "mock" {
		return navpod.NewMockDevice(true)
	}
	dev, err := navpod.OpenSerial(cfg.NavPod.Port, cfg.NavPod.BaudRate, cfg.HandshakeTimeout())
	if err != nil {
		debug.Error(fmt.Errorf("navpod unavailable: %w", err))
		return nil
	}
	return dev
}

// newPublisher connects to the MQTT broker when one is configured. A broker
// that cannot be reached only disables publishing.
func newPublisher(cfg *config.Config) telemetry.Publisher {
	if !cfg.MQTTEnabled() {
		return nil
	}
	pub, err := telemetry.NewMQTTPublisher(cfg.Telemetry)
	if err != nil {
		debug.Error(err)
		return nil
	}
	return pub
}

// validateCLIOverrides checks that set overrides are within valid ranges.
// Negative numbers are ignored (they mean "use config").
func validateCLIOverrides(o cliOverrides) error {
	if math.IsNaN(o.Deadband) || math.IsInf(o.Deadband, 0) || o.Deadband >= 1 {
		return fmt.Errorf("deadband must be in [0, 1), got %g", o.Deadband)
	}
	if o.DebugLevel > debug.LevelTrace {
		return fmt.Errorf("debug must be between 0 and %d, got %d", debug.LevelTrace, o.DebugLevel)
	}
	if o.TickMs == 0 || o.TickMs > 1000 {
		return fmt.Errorf("tick_ms must be between 1 and 1000, got %d", o.TickMs)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Deadband >= 0 {
		cfg.Drive.Deadband = o.Deadband
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.TickMs > 0 {
		cfg.Defaults.TickMs = o.TickMs
	}
	if o.MockHW != nil {
		cfg.Defaults.MockHW = *o.MockHW
	}
	if o.FieldRelative != nil {
		cfg.Drive.FieldRelative = *o.FieldRelative
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
