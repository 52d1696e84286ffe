package gpio

import (
	"fmt"

	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCycleLen is the number of clock ticks per PWM period.
const pwmCycleLen = 1024

// RPiDriver drives the Raspberry Pi pins through go-rpio.
// It is used from the control loop goroutine only.
type RPiDriver struct {
	uses pinTable
	pins map[int]rpio.Pin
	pwm  map[int]rpio.Pin
}

// NewRPiRealDriver maps the GPIO registers. PWM needs /dev/mem, so the
// robot runs as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")
	return &RPiDriver{
		uses: pinTable{},
		pins: make(map[int]rpio.Pin),
		pwm:  make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if err := r.uses.claim(pin, useDigital); err != nil {
		return err
	}
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not set up", pin)
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	p, ok := r.pins[pin]
	if !ok {
		return Low, fmt.Errorf("pin %d not set up", pin)
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	if err := r.uses.claim(pin, usePWM); err != nil {
		return err
	}

	p := rpio.Pin(pin)
	p.Pwm()
	p.Freq(freqHz * pwmCycleLen)
	p.DutyCycle(0, pwmCycleLen)
	r.pwm[pin] = p
	return nil
}

func (r *RPiDriver) WritePWM(pin int, duty float64) error {
	debug.GPIO("WritePWM", pin, duty)
	p, ok := r.pwm[pin]
	if !ok {
		return fmt.Errorf("pin %d not set up for PWM", pin)
	}
	p.DutyCycle(uint32(ClampDuty(duty)*pwmCycleLen), pwmCycleLen)
	return nil
}

// Close zeroes the PWM outputs so the motors coast, then returns every pin
// to input.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	for pin, p := range r.pwm {
		debug.Verbose("Zeroing PWM on pin %d", pin)
		p.DutyCycle(0, pwmCycleLen)
		p.Input()
	}
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	return rpio.Close()
}
