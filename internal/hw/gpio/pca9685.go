package gpio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/holobot/internal/debug"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PCA9685 registers.
const (
	regMode1    = 0x00
	regMode2    = 0x01
	regLED0     = 0x06 // ON_L, ON_H, OFF_L, OFF_H per channel
	regAllLED   = 0xFA
	regPrescale = 0xFE

	mode1Restart = 0x80
	mode1AI      = 0x20
	mode1Sleep   = 0x10
	mode2OutDrv  = 0x04
	ledFull      = 0x10

	pcaOscHz    = 25_000_000
	pcaSteps    = 4096
	pcaChannels = 16

	// DefaultPCA9685Addr is the board address with no solder jumpers set.
	DefaultPCA9685Addr = 0x40
)

// PCA9685 drives the 16 PWM channels of an I2C PWM board. All channels share
// one frequency, set by the first SetupPWM.
type PCA9685 struct {
	mu     sync.Mutex
	dev    *i2c.Dev
	freqHz int
	ready  [pcaChannels]bool
}

// NewPCA9685 resets the board at addr to totem-pole outputs, all off.
func NewPCA9685(bus i2c.Bus, addr uint16) (*PCA9685, error) {
	p := &PCA9685{dev: &i2c.Dev{Bus: bus, Addr: addr}}
	if err := p.write(regMode2, mode2OutDrv); err != nil {
		return nil, fmt.Errorf("pca9685 at %#x: %w", addr, err)
	}
	if err := p.write(regAllLED, 0, 0, 0, ledFull); err != nil {
		return nil, fmt.Errorf("pca9685 at %#x: %w", addr, err)
	}
	if err := p.write(regMode1, mode1AI); err != nil {
		return nil, fmt.Errorf("pca9685 at %#x: %w", addr, err)
	}
	debug.Info("PCA9685 PWM board ready at %#x", addr)
	return p, nil
}

func (p *PCA9685) write(reg byte, data ...byte) error {
	return p.dev.Tx(append([]byte{reg}, data...), nil)
}

// Prescale returns the prescaler value for freqHz, or an error when the
// board cannot produce it (about 24 to 1526 Hz).
func Prescale(freqHz int) (byte, error) {
	if freqHz <= 0 {
		return 0, fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	v := math.Round(pcaOscHz/(pcaSteps*float64(freqHz))) - 1
	if v < 3 || v > 255 {
		return 0, fmt.Errorf("pwm frequency %d Hz out of range for pca9685", freqHz)
	}
	return byte(v), nil
}

// SetupPWM enables channel ch. The first call sets the board frequency;
// later calls must ask for the same one.
func (p *PCA9685) SetupPWM(ch int, freqHz int) error {
	debug.GPIO("SetupPWM (pca9685)", ch, freqHz)
	if ch < 0 || ch >= pcaChannels {
		return fmt.Errorf("pca9685 channel %d out of range (0-%d)", ch, pcaChannels-1)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freqHz == 0 {
		pre, err := Prescale(freqHz)
		if err != nil {
			return err
		}
		// the prescaler is only writable while the oscillator sleeps
		if err := p.write(regMode1, mode1AI|mode1Sleep); err != nil {
			return err
		}
		if err := p.write(regPrescale, pre); err != nil {
			return err
		}
		if err := p.write(regMode1, mode1AI); err != nil {
			return err
		}
		time.Sleep(500 * time.Microsecond)
		if err := p.write(regMode1, mode1AI|mode1Restart); err != nil {
			return err
		}
		p.freqHz = freqHz
	} else if freqHz != p.freqHz {
		return fmt.Errorf("pca9685 runs at %d Hz, channel %d asked for %d Hz", p.freqHz, ch, freqHz)
	}
	if p.ready[ch] {
		return nil
	}
	if err := p.setDuty(ch, 0); err != nil {
		return err
	}
	p.ready[ch] = true
	return nil
}

// WritePWM sets the duty cycle of channel ch in [0, 1].
func (p *PCA9685) WritePWM(ch int, duty float64) error {
	debug.GPIO("WritePWM (pca9685)", ch, duty)
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch < 0 || ch >= pcaChannels || !p.ready[ch] {
		return fmt.Errorf("pca9685 channel %d not set up", ch)
	}
	return p.setDuty(ch, duty)
}

// setDuty uses the full-on and full-off bits at the ends of the range so
// 0 and 1 carry no glitch pulse.
func (p *PCA9685) setDuty(ch int, duty float64) error {
	duty = ClampDuty(duty)
	reg := byte(regLED0 + 4*ch)
	switch {
	case duty == 0:
		return p.write(reg, 0, 0, 0, ledFull)
	case duty == 1:
		return p.write(reg, 0, ledFull, 0, 0)
	}
	off := int(math.Round(duty * pcaSteps))
	off = max(1, min(off, pcaSteps-1))
	return p.write(reg, 0, 0, byte(off), byte(off>>8))
}

// Close turns every channel off.
func (p *PCA9685) Close() error {
	debug.Trace("PCA9685 Close")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(regAllLED, 0, 0, 0, ledFull)
}

// BoardDriver sends PWM to an I2C board and keeps the Pi pins for the
// direction lines.
type BoardDriver struct {
	Driver
	board *PCA9685
	bus   io.Closer
}

// NewBoardDriver combines pins with board. Close stops the board, then
// closes bus and pins.
func NewBoardDriver(pins Driver, board *PCA9685, bus io.Closer) *BoardDriver {
	return &BoardDriver{Driver: pins, board: board, bus: bus}
}

func (b *BoardDriver) SetupPWM(ch int, freqHz int) error {
	return b.board.SetupPWM(ch, freqHz)
}

func (b *BoardDriver) WritePWM(ch int, duty float64) error {
	return b.board.WritePWM(ch, duty)
}

func (b *BoardDriver) Close() error {
	errs := []error{b.board.Close()}
	if b.bus != nil {
		errs = append(errs, b.bus.Close())
	}
	errs = append(errs, b.Driver.Close())
	return errors.Join(errs...)
}

// OpenI2C opens the named I2C bus ("" = first found) through periph, or an
// in-memory bus when mock is set.
func OpenI2C(mock bool, name string) (i2c.BusCloser, error) {
	if mock {
		debug.Info("Using MOCK I2C bus")
		return &MockBus{}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", name, err)
	}
	return bus, nil
}
