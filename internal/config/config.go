package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/holobot/internal/hw/navpod"
)

// MotorConfig describes one motor controller channel (PWM speed + direction pin).
type MotorConfig struct {
	PWMPin   int  `yaml:"pwm_pin"`  // board channel, or BCM pin with hardware PWM. -1 = not wired.
	DirPin   int  `yaml:"dir_pin"`  // BCM direction pin. 0 = not used.
	Inverted bool `yaml:"inverted"` // mechanically mirrored motor
}

// DriveConfig holds the driver-stick shaping and chassis limits.
type DriveConfig struct {
	Deadband      float64 `yaml:"deadband"`        // 0 <= deadband < 1
	MaxLinearMps  float64 `yaml:"max_linear_mps"`  // chassis max linear speed (m/s)
	MaxAngularRps float64 `yaml:"max_angular_rps"` // chassis max angular speed (rad/s)
	FieldRelative bool    `yaml:"field_relative"`  // rotate commands by heading
	ThrottleAxis  int     `yaml:"throttle_axis"`
	XAxis         int     `yaml:"x_axis"` // forward/back
	YAxis         int     `yaml:"y_axis"` // strafe
	ZAxis         int     `yaml:"z_axis"` // rotation
}

// DrivetrainConfig maps the four mecanum wheels to motor channels.
type DrivetrainConfig struct {
	FrontLeft  MotorConfig `yaml:"front_left"`
	FrontRight MotorConfig `yaml:"front_right"`
	BackLeft   MotorConfig `yaml:"back_left"`
	BackRight  MotorConfig `yaml:"back_right"`
}

// NavPodConfig describes the heading/position sensor pod and its mount calibration.
type NavPodConfig struct {
	Type        string `yaml:"type"` // "mock" or "serial"
	Port        string `yaml:"port"`
	BaudRate    int    `yaml:"baud_rate"`
	HandshakeMs int    `yaml:"handshake_ms"`

	MountAngleDeg     float64 `yaml:"mount_angle_deg"`
	FieldOriented     bool    `yaml:"field_oriented"`
	InitialHeadingDeg float64 `yaml:"initial_heading_deg"`
	MountOffsetX      float64 `yaml:"mount_offset_x"` // inches
	MountOffsetY      float64 `yaml:"mount_offset_y"` // inches
	RotationScaleX    float64 `yaml:"rotation_scale_x"`
	RotationScaleY    float64 `yaml:"rotation_scale_y"`
	TranslationScale  float64 `yaml:"translation_scale"`

	StartupHeadingDeg float64 `yaml:"startup_heading_deg"` // heading set at init and autonomous entry
	TelemetryRateS    float64 `yaml:"telemetry_rate_s"`    // diagnostic stream period
}

// ShooterConfig holds the two-speed shooter settings.
type ShooterConfig struct {
	TriggerAxis      int         `yaml:"trigger_axis"`
	BumperButton     int         `yaml:"bumper_button"`
	TriggerThreshold float64     `yaml:"trigger_threshold"`
	LowSpeed         float64     `yaml:"low_speed"`
	HighSpeed        float64     `yaml:"high_speed"`
	LeftMotor        MotorConfig `yaml:"left_motor"`
	RightMotor       MotorConfig `yaml:"right_motor"`
}

// LifterConfig holds the threshold-gated lift settings.
type LifterConfig struct {
	Axis               int         `yaml:"axis"`
	Threshold          float64     `yaml:"threshold"`
	Modifier           float64     `yaml:"modifier"`
	StopBelowThreshold bool        `yaml:"stop_below_threshold"` // false keeps the last command
	LeftMotor          MotorConfig `yaml:"left_motor"`
	RightMotor         MotorConfig `yaml:"right_motor"`
}

// IntakeConfig holds the intake roller settings.
type IntakeConfig struct {
	InButton  int         `yaml:"in_button"`
	OutButton int         `yaml:"out_button"`
	Speed     float64     `yaml:"speed"`
	Motor     MotorConfig `yaml:"motor"`
}

// HIDConfig selects which driver-station controller drives what.
type HIDConfig struct {
	DriverIndex   int `yaml:"driver_index"`
	OperatorIndex int `yaml:"operator_index"`
	StaleMs       int `yaml:"stale_ms"` // frames older than this read as neutral
}

// TelemetryConfig configures the MQTT diagnostic stream. Empty broker disables it.
type TelemetryConfig struct {
	MQTTBroker  string `yaml:"mqtt_broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	TickMs        int    `yaml:"tick_ms"`         // control loop period
	PWMFreqHz     int    `yaml:"pwm_freq_hz"`     // motor PWM frequency
	DebugLevel    int    `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockHW        bool   `yaml:"mock_hw"`         // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	PWMBoard      string `yaml:"pwm_board"`       // "pca9685", or "" for the Pi's own two PWM channels
	PWMBoardAddr  int    `yaml:"pwm_board_addr"`  // I2C address of the PWM board
	I2CBus        string `yaml:"i2c_bus"`         // periph bus name, "" = first bus
	LogFile       string `yaml:"log_file"`        // optional rotated log file
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"` // rotation size
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// Config aggregates all application configuration.
type Config struct {
	Drive      DriveConfig      `yaml:"drive"`
	Drivetrain DrivetrainConfig `yaml:"drivetrain"`
	NavPod     NavPodConfig     `yaml:"navpod"`
	Shooter    ShooterConfig    `yaml:"shooter"`
	Lifter     LifterConfig     `yaml:"lifter"`
	Intake     IntakeConfig     `yaml:"intake"`
	HID        HIDConfig        `yaml:"hid"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// Default returns the configuration used for any key the YAML file leaves out.
// Values follow the competition robot: joystick on index 0, Xbox operator on
// index 1. Operator indices use the browser's standard gamepad layout
// (buttons 0=A 1=B 5=RB, axes 0-3 sticks) with the driver station
// appending the LT and RT values as axes 4 and 5.
func Default() *Config {
	return &Config{
		Drive: DriveConfig{
			Deadband:      0.3,
			MaxLinearMps:  4.0,
			MaxAngularRps: 6.0,
			ThrottleAxis:  3,
			XAxis:         1,
			YAxis:         0,
			ZAxis:         2,
		},
		Drivetrain: DrivetrainConfig{
			FrontLeft:  MotorConfig{PWMPin: 0, DirPin: 5},
			FrontRight: MotorConfig{PWMPin: 1, DirPin: 6, Inverted: true},
			BackLeft:   MotorConfig{PWMPin: 2, DirPin: 16},
			BackRight:  MotorConfig{PWMPin: 3, DirPin: 20, Inverted: true},
		},
		NavPod: NavPodConfig{
			Type:              "mock",
			Port:              "/dev/ttyUSB0",
			BaudRate:          115200,
			HandshakeMs:       500,
			MountAngleDeg:     270,
			FieldOriented:     true,
			MountOffsetY:      4.25,
			RotationScaleX:    0.0675,
			RotationScaleY:    0.02,
			TranslationScale:  0.008567,
			StartupHeadingDeg: 90,
			TelemetryRateS:    0.5,
		},
		Shooter: ShooterConfig{
			TriggerAxis:      5,
			BumperButton:     5,
			TriggerThreshold: 0.2,
			LowSpeed:         0.25,
			HighSpeed:        0.70,
			LeftMotor:        MotorConfig{PWMPin: 4, DirPin: 17, Inverted: true},
			RightMotor:       MotorConfig{PWMPin: 5, DirPin: 27},
		},
		Lifter: LifterConfig{
			Axis:       1,
			Threshold:  0.1,
			Modifier:   0.5,
			LeftMotor:  MotorConfig{PWMPin: 6, DirPin: 22},
			RightMotor: MotorConfig{PWMPin: 7, DirPin: 23},
		},
		Intake: IntakeConfig{
			InButton:  0,
			OutButton: 1,
			Speed:     0.6,
			Motor:     MotorConfig{PWMPin: 8, DirPin: 24},
		},
		HID: HIDConfig{
			DriverIndex:   0,
			OperatorIndex: 1,
			StaleMs:       500,
		},
		Telemetry: TelemetryConfig{
			ClientID:    "holobot",
			TopicPrefix: "holobot",
		},
		Defaults: DefaultsConfig{
			TickMs:        20,
			PWMFreqHz:     1000,
			DebugLevel:    1,
			MockHW:        true,
			PWMBoard:      "pca9685",
			PWMBoardAddr:  0x40,
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
		},
	}
}

// ValidateConfigPath checks that path points to a .yaml file inside a
// configs/ directory and contains no parent-directory traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over the defaults and returns the validated configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would produce a division by zero or NaN at runtime.
func (c *Config) Validate() error {
	d := c.Drive
	if !finite(d.Deadband) || d.Deadband < 0 || d.Deadband >= 1 {
		return fmt.Errorf("drive.deadband must be in [0, 1), got %g", d.Deadband)
	}
	if !finite(d.MaxLinearMps) || d.MaxLinearMps <= 0 {
		return fmt.Errorf("drive.max_linear_mps must be > 0, got %g", d.MaxLinearMps)
	}
	if !finite(d.MaxAngularRps) || d.MaxAngularRps <= 0 {
		return fmt.Errorf("drive.max_angular_rps must be > 0, got %g", d.MaxAngularRps)
	}
	for name, idx := range map[string]int{
		"drive.throttle_axis":   d.ThrottleAxis,
		"drive.x_axis":          d.XAxis,
		"drive.y_axis":          d.YAxis,
		"drive.z_axis":          d.ZAxis,
		"shooter.trigger_axis":  c.Shooter.TriggerAxis,
		"shooter.bumper_button": c.Shooter.BumperButton,
		"lifter.axis":           c.Lifter.Axis,
		"intake.in_button":      c.Intake.InButton,
		"intake.out_button":     c.Intake.OutButton,
		"hid.driver_index":      c.HID.DriverIndex,
		"hid.operator_index":    c.HID.OperatorIndex,
	} {
		if idx < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, idx)
		}
	}

	n := c.NavPod
	switch n.Type {
	case "mock", "serial":
	default:
		return fmt.Errorf("navpod.type must be \"mock\" or \"serial\", got %q", n.Type)
	}
	if n.Type == "serial" && n.Port == "" {
		return fmt.Errorf("navpod.port is required for serial navpod")
	}
	if n.BaudRate <= 0 {
		return fmt.Errorf("navpod.baud_rate must be > 0, got %d", n.BaudRate)
	}
	for name, v := range map[string]float64{
		"navpod.rotation_scale_x":  n.RotationScaleX,
		"navpod.rotation_scale_y":  n.RotationScaleY,
		"navpod.translation_scale": n.TranslationScale,
	} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%s must be finite and >= 0, got %g", name, v)
		}
	}
	for name, v := range map[string]float64{
		"navpod.mount_angle_deg":     n.MountAngleDeg,
		"navpod.mount_offset_x":      n.MountOffsetX,
		"navpod.mount_offset_y":      n.MountOffsetY,
		"navpod.initial_heading_deg": n.InitialHeadingDeg,
		"navpod.startup_heading_deg": n.StartupHeadingDeg,
	} {
		if !finite(v) {
			return fmt.Errorf("%s must be finite, got %g", name, v)
		}
	}
	if !finite(n.TelemetryRateS) || n.TelemetryRateS <= 0 {
		return fmt.Errorf("navpod.telemetry_rate_s must be > 0, got %g", n.TelemetryRateS)
	}

	s := c.Shooter
	if err := unitRange("shooter.trigger_threshold", s.TriggerThreshold); err != nil {
		return err
	}
	if err := unitRange("shooter.low_speed", s.LowSpeed); err != nil {
		return err
	}
	if err := unitRange("shooter.high_speed", s.HighSpeed); err != nil {
		return err
	}
	if err := unitRange("lifter.threshold", c.Lifter.Threshold); err != nil {
		return err
	}
	if err := unitRange("lifter.modifier", c.Lifter.Modifier); err != nil {
		return err
	}
	if err := unitRange("intake.speed", c.Intake.Speed); err != nil {
		return err
	}

	if c.Defaults.TickMs <= 0 {
		return fmt.Errorf("defaults.tick_ms must be > 0, got %d", c.Defaults.TickMs)
	}
	if c.Defaults.PWMFreqHz <= 0 {
		return fmt.Errorf("defaults.pwm_freq_hz must be > 0, got %d", c.Defaults.PWMFreqHz)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return c.validateWiring()
}

// validateWiring rejects two motors on one PWM output and board channels
// the board does not have. On-chip pin checks happen when the pins are
// claimed at startup.
func (c *Config) validateWiring() error {
	switch c.Defaults.PWMBoard {
	case "", "pca9685":
	default:
		return fmt.Errorf("defaults.pwm_board must be \"pca9685\" or empty, got %q", c.Defaults.PWMBoard)
	}
	board := c.Defaults.PWMBoard != ""
	if board && (c.Defaults.PWMBoardAddr < 0x03 || c.Defaults.PWMBoardAddr > 0x7F) {
		return fmt.Errorf("defaults.pwm_board_addr must be a 7-bit I2C address, got %#x", c.Defaults.PWMBoardAddr)
	}
	used := map[int]string{}
	for _, m := range c.Motors() {
		out := m.Config.PWMPin
		if out < 0 {
			continue
		}
		if board && out > 15 {
			return fmt.Errorf("%s.pwm_pin must be a board channel 0-15, got %d", m.Name, out)
		}
		if prev, ok := used[out]; ok {
			return fmt.Errorf("%s.pwm_pin %d is already used by %s", m.Name, out, prev)
		}
		used[out] = m.Name
	}
	return nil
}

// NamedMotor pairs a motor's config key with its wiring.
type NamedMotor struct {
	Name   string
	Config MotorConfig
}

// Motors lists every motor channel in a fixed order.
func (c *Config) Motors() []NamedMotor {
	return []NamedMotor{
		{"drivetrain.front_left", c.Drivetrain.FrontLeft},
		{"drivetrain.front_right", c.Drivetrain.FrontRight},
		{"drivetrain.back_left", c.Drivetrain.BackLeft},
		{"drivetrain.back_right", c.Drivetrain.BackRight},
		{"shooter.left_motor", c.Shooter.LeftMotor},
		{"shooter.right_motor", c.Shooter.RightMotor},
		{"lifter.left_motor", c.Lifter.LeftMotor},
		{"lifter.right_motor", c.Lifter.RightMotor},
		{"intake.motor", c.Intake.Motor},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unitRange(name string, v float64) error {
	if !finite(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", name, v)
	}
	return nil
}

// TickPeriod returns the control loop period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Defaults.TickMs) * time.Millisecond
}

// TelemetryRate returns the diagnostic stream period.
func (c *Config) TelemetryRate() time.Duration {
	return time.Duration(c.NavPod.TelemetryRateS * float64(time.Second))
}

// HandshakeTimeout returns how long to wait for the sensor pod to answer.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.NavPod.HandshakeMs) * time.Millisecond
}

// StaleAfter returns the age after which a driver-station frame reads as neutral.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.HID.StaleMs) * time.Millisecond
}

// MQTTEnabled reports whether the diagnostic stream should be published.
func (c *Config) MQTTEnabled() bool {
	return c.Telemetry.MQTTBroker != ""
}

// Calibration returns the navpod mount calibration.
func (c *Config) Calibration() navpod.Calibration {
	n := c.NavPod
	return navpod.Calibration{
		MountAngleDeg:     n.MountAngleDeg,
		MountOffsetX:      n.MountOffsetX,
		MountOffsetY:      n.MountOffsetY,
		RotationScaleX:    n.RotationScaleX,
		RotationScaleY:    n.RotationScaleY,
		TranslationScale:  n.TranslationScale,
		InitialHeadingDeg: n.InitialHeadingDeg,
		FieldOriented:     n.FieldOriented,
	}
}
