package navpod

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrClosed is returned by device operations after Close.
var ErrClosed = errors.New("navpod: device closed")

// Calibration describes how the pod is mounted on the chassis and how its raw
// counts scale to robot-frame units. It is applied once per session.
type Calibration struct {
	MountAngleDeg     float64 `json:"mount_angle_deg" yaml:"mount_angle_deg"`
	MountOffsetX      float64 `json:"mount_offset_x" yaml:"mount_offset_x"` // inches
	MountOffsetY      float64 `json:"mount_offset_y" yaml:"mount_offset_y"` // inches
	RotationScaleX    float64 `json:"rotation_scale_x" yaml:"rotation_scale_x"`
	RotationScaleY    float64 `json:"rotation_scale_y" yaml:"rotation_scale_y"`
	TranslationScale  float64 `json:"translation_scale" yaml:"translation_scale"`
	InitialHeadingDeg float64 `json:"initial_heading_deg" yaml:"initial_heading_deg"`
	FieldOriented     bool    `json:"field_oriented" yaml:"field_oriented"`
}

// Validate rejects non-finite or negative scale factors and non-finite
// offsets or angles.
func (c Calibration) Validate() error {
	scales := []struct {
		name string
		v    float64
	}{
		{"rotation scale x", c.RotationScaleX},
		{"rotation scale y", c.RotationScaleY},
		{"translation scale", c.TranslationScale},
	}
	for _, s := range scales {
		if math.IsNaN(s.v) || math.IsInf(s.v, 0) || s.v < 0 {
			return fmt.Errorf("%s must be finite and >= 0, got %g", s.name, s.v)
		}
	}
	values := []struct {
		name string
		v    float64
	}{
		{"mount angle", c.MountAngleDeg},
		{"mount offset x", c.MountOffsetX},
		{"mount offset y", c.MountOffsetY},
		{"initial heading", c.InitialHeadingDeg},
	}
	for _, s := range values {
		if math.IsNaN(s.v) || math.IsInf(s.v, 0) {
			return fmt.Errorf("%s must be finite, got %g", s.name, s.v)
		}
	}
	return nil
}

// Normalized returns a copy with the mount angle taken modulo 360, in [0, 360).
func (c Calibration) Normalized() Calibration {
	a := math.Mod(c.MountAngleDeg, 360)
	if a < 0 {
		a += 360
	}
	c.MountAngleDeg = a
	return c
}

// Update is one fused sample from the pod: heading and position, each with
// the scaled source value the pod derived it from.
type Update struct {
	H  float64 `json:"h"`
	SH float64 `json:"sh"`
	X  float64 `json:"x"`
	SX float64 `json:"sx"`
	Y  float64 `json:"y"`
	SY float64 `json:"sy"`
}

// Device is the heading/position sensor pod.
type Device interface {
	// IsValid reports whether the pod answered during initialization.
	IsValid() bool
	SetCalibration(cal Calibration) error
	Calibration() Calibration
	ResetHeading(h float64) error
	ResetPosition(x, y float64) error
	// Poll returns the latest update. ok is false when nothing new arrived
	// since the previous Poll.
	Poll() (u Update, ok bool, err error)
	// Subscribe calls fn with the latest update every rate, on a goroutine
	// owned by the device, until stop is called.
	Subscribe(rate time.Duration, fn func(Update)) (stop func(), err error)
	Close() error
}

// stream runs fn every rate with whatever latest reports, until stop.
// stop waits for the goroutine to exit.
func stream(rate time.Duration, latest func() (Update, bool), fn func(Update)) (func(), error) {
	if rate <= 0 {
		return nil, fmt.Errorf("subscription rate must be > 0, got %v", rate)
	}
	if fn == nil {
		return nil, fmt.Errorf("subscription callback is nil")
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(rate)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if u, ok := latest(); ok {
					fn(u)
				}
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(quit)
		<-done
	}, nil
}
