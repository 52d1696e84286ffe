package gpio

import "testing"

const testAddr = DefaultPCA9685Addr

func newTestBoard(t *testing.T) (*PCA9685, *MockBus) {
	t.Helper()
	bus := &MockBus{}
	p, err := NewPCA9685(bus, testAddr)
	if err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}
	return p, bus
}

// channelRegs returns ON_L, ON_H, OFF_L, OFF_H of channel ch.
func channelRegs(bus *MockBus, ch int) [4]byte {
	base := byte(regLED0 + 4*ch)
	return [4]byte{
		bus.Reg(testAddr, base),
		bus.Reg(testAddr, base+1),
		bus.Reg(testAddr, base+2),
		bus.Reg(testAddr, base+3),
	}
}

func TestPrescale(t *testing.T) {
	cases := []struct {
		freq    int
		want    byte
		wantErr bool
	}{
		{1000, 5, false},
		{50, 121, false},
		{1526, 3, false},
		{2000, 0, true},
		{23, 0, true},
		{0, 0, true},
	}
	for _, tc := range cases {
		got, err := Prescale(tc.freq)
		if (err != nil) != tc.wantErr {
			t.Errorf("Prescale(%d) err = %v, wantErr %v", tc.freq, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("Prescale(%d) = %d, want %d", tc.freq, got, tc.want)
		}
	}
}

func TestPCA9685_Setup(t *testing.T) {
	p, bus := newTestBoard(t)
	if err := p.SetupPWM(0, 1000); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if got := bus.Reg(testAddr, regPrescale); got != 5 {
		t.Errorf("prescale = %d, want 5", got)
	}
	if got := bus.Reg(testAddr, regMode1); got != mode1AI|mode1Restart {
		t.Errorf("MODE1 = %#x, want %#x", got, mode1AI|mode1Restart)
	}
	if got := bus.Reg(testAddr, regMode2); got != mode2OutDrv {
		t.Errorf("MODE2 = %#x, want %#x", got, mode2OutDrv)
	}
	if got := channelRegs(bus, 0); got != [4]byte{0, 0, 0, ledFull} {
		t.Errorf("channel 0 after setup = % x, want full off", got)
	}
}

func TestPCA9685_Duty(t *testing.T) {
	cases := []struct {
		name string
		duty float64
		want [4]byte
	}{
		{"off", 0, [4]byte{0, 0, 0, ledFull}},
		{"half", 0.5, [4]byte{0, 0, 0x00, 0x08}},
		{"quarter", 0.25, [4]byte{0, 0, 0x00, 0x04}},
		{"full", 1, [4]byte{0, ledFull, 0, 0}},
		{"clamped", 1.4, [4]byte{0, ledFull, 0, 0}},
		{"tiny_is_one_step", 0.00001, [4]byte{0, 0, 1, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, bus := newTestBoard(t)
			if err := p.SetupPWM(3, 1000); err != nil {
				t.Fatalf("SetupPWM: %v", err)
			}
			if err := p.WritePWM(3, tc.duty); err != nil {
				t.Fatalf("WritePWM: %v", err)
			}
			if got := channelRegs(bus, 3); got != tc.want {
				t.Errorf("channel 3 = % x, want % x", got, tc.want)
			}
		})
	}
}

func TestPCA9685_Errors(t *testing.T) {
	cases := []struct {
		name string
		do   func(p *PCA9685) error
	}{
		{"channel_too_high", func(p *PCA9685) error { return p.SetupPWM(16, 1000) }},
		{"channel_negative", func(p *PCA9685) error { return p.SetupPWM(-1, 1000) }},
		{"write_not_setup", func(p *PCA9685) error { return p.WritePWM(2, 0.5) }},
		{"frequency_out_of_range", func(p *PCA9685) error { return p.SetupPWM(0, 5000) }},
		{"second_frequency", func(p *PCA9685) error {
			if err := p.SetupPWM(0, 1000); err != nil {
				return nil
			}
			return p.SetupPWM(1, 50)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestBoard(t)
			if err := tc.do(p); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewPCA9685_BusError(t *testing.T) {
	if _, err := NewPCA9685(&MockBus{Fail: true}, testAddr); err == nil {
		t.Error("expected error from a board that does not ack")
	}
}

func TestBoardDriver_IndependentWheels(t *testing.T) {
	p, bus := newTestBoard(t)
	pins := &MockDriver{}
	d := NewBoardDriver(pins, p, bus)

	// front-left and back-left, which share a channel on the Pi itself
	for _, ch := range []int{0, 2} {
		if err := d.SetupPWM(ch, 1000); err != nil {
			t.Fatalf("SetupPWM(%d): %v", ch, err)
		}
	}
	if err := d.SetupPin(5, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	if err := d.WritePWM(0, 0.25); err != nil {
		t.Fatalf("WritePWM(0): %v", err)
	}
	if err := d.WritePWM(2, 0.75); err != nil {
		t.Fatalf("WritePWM(2): %v", err)
	}
	if err := d.WritePin(5, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}

	if got := channelRegs(bus, 0); got != [4]byte{0, 0, 0x00, 0x04} {
		t.Errorf("channel 0 = % x, want 25%%", got)
	}
	if got := channelRegs(bus, 2); got != [4]byte{0, 0, 0x00, 0x0C} {
		t.Errorf("channel 2 = % x, want 75%%", got)
	}
	if pins.Level(5) != High {
		t.Error("direction pin should go to the Pi driver")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := bus.Reg(testAddr, regAllLED+3); got != ledFull {
		t.Errorf("ALL_LED_OFF_H after Close = %#x, want full off", got)
	}
}

func TestOpenI2C_Mock(t *testing.T) {
	bus, err := OpenI2C(true, "")
	if err != nil {
		t.Fatalf("OpenI2C(mock): %v", err)
	}
	defer bus.Close()
	if _, ok := bus.(*MockBus); !ok {
		t.Errorf("OpenI2C(mock) = %T, want *MockBus", bus)
	}
}
