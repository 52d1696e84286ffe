package navpod

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/cjeanneret/holobot/internal/debug"
)

// SerialDevice talks to the pod over a line-oriented ASCII protocol:
//
//	host -> pod: PING | CFG <mount> <ox> <oy> <rsx> <rsy> <ts> <h0> <fo> | RH <h> | RXY <x> <y>
//	pod -> host: PONG | U <h> <sh> <x> <sx> <y> <sy>
//
// A reader goroutine keeps the most recent U line. Resets are applied to
// the kept line at once, like MockDevice.
type SerialDevice struct {
	rw  io.ReadWriteCloser
	wmu sync.Mutex

	mu     sync.Mutex // guards the fields below; shared with the reader goroutine
	cal    Calibration
	latest Update
	seen   bool
	fresh  bool

	valid     bool
	malformed atomic.Int64
	pong      chan struct{}
	pongOnce  sync.Once
	done      chan struct{}
	closed    atomic.Bool
}

// OpenSerial opens the pod on a UART and performs the PING/PONG handshake.
// A pod that does not answer within handshake yields a device whose
// IsValid is false, not an error.
func OpenSerial(port string, baudRate int, handshake time.Duration) (*SerialDevice, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open navpod serial port %s: %w", port, err)
	}
	debug.Info("navpod serial port opened on %s at %d baud", port, baudRate)
	return NewStreamDevice(p, handshake), nil
}

// NewStreamDevice runs the pod protocol over any byte stream.
func NewStreamDevice(rw io.ReadWriteCloser, handshake time.Duration) *SerialDevice {
	d := &SerialDevice{
		rw:   rw,
		pong: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.readLoop()

	if err := d.send("PING"); err != nil {
		debug.Error(fmt.Errorf("navpod handshake: %w", err))
		return d
	}
	select {
	case <-d.pong:
		d.valid = true
		debug.Info("navpod answered handshake")
	case <-d.done:
		debug.Info("navpod stream closed during handshake")
	case <-time.After(handshake):
		debug.Info("navpod did not answer within %v", handshake)
	}
	return d
}

func (d *SerialDevice) readLoop() {
	defer close(d.done)
	scanner := bufio.NewScanner(d.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.handleLine(line)
	}
	if err := scanner.Err(); err != nil && !d.closed.Load() {
		debug.Error(fmt.Errorf("navpod read: %w", err))
	}
}

func (d *SerialDevice) handleLine(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "PONG":
		d.pongOnce.Do(func() { close(d.pong) })
	case "U":
		u, err := parseUpdate(fields[1:])
		if err != nil {
			d.malformed.Add(1)
			debug.Trace("navpod: skipping %q: %v", line, err)
			return
		}
		d.mu.Lock()
		d.latest = u
		d.seen = true
		d.fresh = true
		d.mu.Unlock()
	default:
		d.malformed.Add(1)
		debug.Trace("navpod: unknown line %q", line)
	}
}

func parseUpdate(fields []string) (Update, error) {
	if len(fields) != 6 {
		return Update{}, fmt.Errorf("want 6 values, got %d", len(fields))
	}
	var v [6]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Update{}, err
		}
		v[i] = x
	}
	return Update{H: v[0], SH: v[1], X: v[2], SX: v[3], Y: v[4], SY: v[5]}, nil
}

func (d *SerialDevice) send(format string, args ...interface{}) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_, err := fmt.Fprintf(d.rw, format+"\n", args...)
	return err
}

// Malformed returns how many inbound lines were skipped.
func (d *SerialDevice) Malformed() int64 {
	return d.malformed.Load()
}

func (d *SerialDevice) IsValid() bool {
	return d.valid && !d.closed.Load()
}

func (d *SerialDevice) SetCalibration(cal Calibration) error {
	cal = cal.Normalized()
	fo := 0
	if cal.FieldOriented {
		fo = 1
	}
	if err := d.send("CFG %g %g %g %g %g %g %g %d",
		cal.MountAngleDeg, cal.MountOffsetX, cal.MountOffsetY,
		cal.RotationScaleX, cal.RotationScaleY, cal.TranslationScale,
		cal.InitialHeadingDeg, fo); err != nil {
		return fmt.Errorf("send calibration: %w", err)
	}
	d.mu.Lock()
	d.cal = cal
	d.mu.Unlock()
	return nil
}

// Calibration returns the calibration last sent to the pod.
func (d *SerialDevice) Calibration() Calibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal
}

func (d *SerialDevice) ResetHeading(h float64) error {
	if err := d.send("RH %g", h); err != nil {
		return fmt.Errorf("reset heading: %w", err)
	}
	d.mu.Lock()
	d.latest.H, d.latest.SH = h, h
	d.anchor()
	d.mu.Unlock()
	return nil
}

func (d *SerialDevice) ResetPosition(x, y float64) error {
	if err := d.send("RXY %g %g", x, y); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}
	d.mu.Lock()
	d.latest.X, d.latest.SX = x, x
	d.latest.Y, d.latest.SY = y, y
	d.anchor()
	d.mu.Unlock()
	return nil
}

// anchor makes a reset the latest update, so the next Poll reports the
// re-anchored values instead of a sample the pod sent before the reset.
// Callers hold d.mu.
func (d *SerialDevice) anchor() {
	d.seen = true
	d.fresh = true
}

func (d *SerialDevice) Poll() (Update, bool, error) {
	if d.closed.Load() {
		return Update{}, false, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := d.fresh
	d.fresh = false
	return d.latest, ok, nil
}

// Subscribe does not consume the freshness flag Poll reports.
func (d *SerialDevice) Subscribe(rate time.Duration, fn func(Update)) (func(), error) {
	return stream(rate, func() (Update, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.latest, d.seen && !d.closed.Load()
	}, fn)
}

func (d *SerialDevice) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err := d.rw.Close()
	<-d.done
	return err
}
