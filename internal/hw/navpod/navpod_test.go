package navpod

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// ---------- Calibration ----------

func TestCalibration_Validate(t *testing.T) {
	good := Calibration{
		MountAngleDeg:    270,
		MountOffsetY:     4.25,
		RotationScaleX:   0.0675,
		RotationScaleY:   0.02,
		TranslationScale: 0.008567,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid calibration rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Calibration)
	}{
		{"rotation_x_nan", func(c *Calibration) { c.RotationScaleX = math.NaN() }},
		{"rotation_y_inf", func(c *Calibration) { c.RotationScaleY = math.Inf(1) }},
		{"translation_negative", func(c *Calibration) { c.TranslationScale = -0.1 }},
		{"mount_angle_inf", func(c *Calibration) { c.MountAngleDeg = math.Inf(-1) }},
		{"offset_nan", func(c *Calibration) { c.MountOffsetX = math.NaN() }},
		{"initial_heading_nan", func(c *Calibration) { c.InitialHeadingDeg = math.NaN() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := good
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCalibration_NormalizedMountAngle(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{270, 270},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-720, 0},
	}
	for _, tc := range cases {
		got := Calibration{MountAngleDeg: tc.in}.Normalized().MountAngleDeg
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Normalized(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// ---------- MockDevice ----------

func TestMockDevice_ResetThenPoll(t *testing.T) {
	m := NewMockDevice(true)
	if err := m.SetCalibration(Calibration{MountAngleDeg: 270}); err != nil {
		t.Fatalf("SetCalibration: %v", err)
	}
	if err := m.ResetHeading(90); err != nil {
		t.Fatalf("ResetHeading: %v", err)
	}
	if err := m.ResetPosition(1.5, -2); err != nil {
		t.Fatalf("ResetPosition: %v", err)
	}
	u, ok, err := m.Poll()
	if err != nil || !ok {
		t.Fatalf("Poll: ok=%v err=%v", ok, err)
	}
	if u.H != 90 || u.X != 1.5 || u.Y != -2 {
		t.Errorf("Poll = %+v, want h=90 x=1.5 y=-2", u)
	}
}

func TestMockDevice_MissAndClose(t *testing.T) {
	m := NewMockDevice(true)
	m.Push(Update{H: 10})
	m.Miss(1)
	if _, ok, _ := m.Poll(); ok {
		t.Error("first poll after Miss(1) should report no data")
	}
	if u, ok, _ := m.Poll(); !ok || u.H != 10 {
		t.Errorf("second poll = %+v ok=%v, want h=10 ok", u, ok)
	}

	_ = m.Close()
	if m.IsValid() {
		t.Error("closed device should not be valid")
	}
	if _, _, err := m.Poll(); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll after Close err = %v, want ErrClosed", err)
	}
	if err := m.ResetHeading(0); !errors.Is(err, ErrClosed) {
		t.Errorf("ResetHeading after Close err = %v, want ErrClosed", err)
	}
}

func TestMockDevice_Subscribe(t *testing.T) {
	m := NewMockDevice(true)
	m.Push(Update{H: 42})

	got := make(chan Update, 8)
	stop, err := m.Subscribe(5*time.Millisecond, func(u Update) {
		select {
		case got <- u:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	select {
	case u := <-got:
		if u.H != 42 {
			t.Errorf("streamed h = %v, want 42", u.H)
		}
	case <-time.After(time.Second):
		t.Fatal("no update streamed within 1s")
	}
}

func TestSubscribe_RejectsBadArguments(t *testing.T) {
	m := NewMockDevice(true)
	if _, err := m.Subscribe(0, func(Update) {}); err == nil {
		t.Error("expected error for zero rate")
	}
	if _, err := m.Subscribe(time.Second, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

// ---------- SerialDevice over net.Pipe ----------

// fakePod answers the host side of the protocol and records every command.
type fakePod struct {
	conn   net.Conn
	silent bool

	mu    sync.Mutex
	lines []string
}

func startPod(t *testing.T, silent bool) (*fakePod, net.Conn) {
	t.Helper()
	host, pod := net.Pipe()
	p := &fakePod{conn: pod, silent: silent}
	go p.serve()
	return p, host
}

func (p *fakePod) serve() {
	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		p.lines = append(p.lines, line)
		p.mu.Unlock()
		if line == "PING" && !p.silent {
			fmt.Fprint(p.conn, "PONG\n")
		}
	}
}

func (p *fakePod) send(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprint(p.conn, line+"\n"); err != nil {
		t.Fatalf("pod write: %v", err)
	}
}

func (p *fakePod) waitLine(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		for _, l := range p.lines {
			if strings.HasPrefix(l, prefix) {
				p.mu.Unlock()
				return l
			}
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pod never received a %q line", prefix)
	return ""
}

func waitPoll(t *testing.T, d *SerialDevice) Update {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		u, ok, err := d.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if ok {
			return u
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no update polled within 1s")
	return Update{}
}

func TestSerialDevice_Handshake(t *testing.T) {
	_, host := startPod(t, false)
	d := NewStreamDevice(host, time.Second)
	defer d.Close()
	if !d.IsValid() {
		t.Error("device answering PONG should be valid")
	}
}

func TestSerialDevice_SilentPodIsInvalid(t *testing.T) {
	_, host := startPod(t, true)
	d := NewStreamDevice(host, 20*time.Millisecond)
	defer d.Close()
	if d.IsValid() {
		t.Error("silent pod should not be valid")
	}
}

func TestSerialDevice_Commands(t *testing.T) {
	pod, host := startPod(t, false)
	d := NewStreamDevice(host, time.Second)
	defer d.Close()

	cal := Calibration{
		MountAngleDeg:    630,
		MountOffsetY:     4.25,
		RotationScaleX:   0.0675,
		RotationScaleY:   0.02,
		TranslationScale: 0.008567,
		FieldOriented:    true,
	}
	if err := d.SetCalibration(cal); err != nil {
		t.Fatalf("SetCalibration: %v", err)
	}
	if got, want := pod.waitLine(t, "CFG"), "CFG 270 0 4.25 0.0675 0.02 0.008567 0 1"; got != want {
		t.Errorf("CFG line = %q, want %q", got, want)
	}
	if d.Calibration().MountAngleDeg != 270 {
		t.Errorf("Calibration().MountAngleDeg = %v, want 270", d.Calibration().MountAngleDeg)
	}

	if err := d.ResetHeading(90); err != nil {
		t.Fatalf("ResetHeading: %v", err)
	}
	if got := pod.waitLine(t, "RH"); got != "RH 90" {
		t.Errorf("RH line = %q, want \"RH 90\"", got)
	}
	if err := d.ResetPosition(0, -1.5); err != nil {
		t.Fatalf("ResetPosition: %v", err)
	}
	if got := pod.waitLine(t, "RXY"); got != "RXY 0 -1.5" {
		t.Errorf("RXY line = %q, want \"RXY 0 -1.5\"", got)
	}
}

func TestSerialDevice_UpdatesAndFreshness(t *testing.T) {
	pod, host := startPod(t, false)
	d := NewStreamDevice(host, time.Second)
	defer d.Close()

	pod.send(t, "garbage line")
	pod.send(t, "U 1 2 3")
	pod.send(t, "U 91.5 91.5 0.25 29.2 -1 -116.7")

	u := waitPoll(t, d)
	want := Update{H: 91.5, SH: 91.5, X: 0.25, SX: 29.2, Y: -1, SY: -116.7}
	if u != want {
		t.Errorf("Poll = %+v, want %+v", u, want)
	}

	// same update is not reported twice
	if _, ok, _ := d.Poll(); ok {
		t.Error("second Poll without a new line should report ok=false")
	}
	if d.Malformed() != 2 {
		t.Errorf("Malformed() = %d, want 2", d.Malformed())
	}
}

func TestSerialDevice_ResetThenPoll(t *testing.T) {
	pod, host := startPod(t, false)
	d := NewStreamDevice(host, time.Second)
	defer d.Close()

	pod.send(t, "U 10 10 3 3 4 4")
	if u := waitPoll(t, d); u.H != 10 {
		t.Fatalf("first Poll H = %v, want 10", u.H)
	}
	// a second sample arrives and is still unread when the reset happens
	pod.send(t, "U 12 12 3 3 4 4")
	deadline := time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		h := d.latest.H
		d.mu.Unlock()
		if h == 12 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second update never arrived")
		}
		time.Sleep(time.Millisecond)
	}

	if err := d.ResetHeading(90); err != nil {
		t.Fatalf("ResetHeading: %v", err)
	}
	if err := d.ResetPosition(0, 0); err != nil {
		t.Fatalf("ResetPosition: %v", err)
	}
	u, ok, err := d.Poll()
	if err != nil || !ok {
		t.Fatalf("Poll after reset = ok %v err %v, want fresh update", ok, err)
	}
	want := Update{H: 90, SH: 90}
	if u != want {
		t.Errorf("Poll after reset = %+v, want %+v", u, want)
	}
}

func TestSerialDevice_CloseStopsOperations(t *testing.T) {
	_, host := startPod(t, false)
	d := NewStreamDevice(host, time.Second)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.IsValid() {
		t.Error("closed device should not be valid")
	}
	if err := d.ResetHeading(0); !errors.Is(err, ErrClosed) {
		t.Errorf("ResetHeading after Close err = %v, want ErrClosed", err)
	}
	if _, _, err := d.Poll(); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll after Close err = %v, want ErrClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
