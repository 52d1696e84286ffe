package web

import (
	"encoding/json"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	evt := receive(t, ch)
	if evt.Msg != "hello" || evt.Level != "info" {
		t.Errorf("event = %+v, want info/hello", evt)
	}
	if evt.Time == "" {
		t.Error("event should have a timestamp")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()
	if b.Clients() != 2 {
		t.Errorf("Clients() = %d, want 2", b.Clients())
	}

	b.Broadcast("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "multi" {
			t.Errorf("subscriber %d: msg = %q, want \"multi\"", i, evt.Msg)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", b.Clients())
	}
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}
	b.Broadcast("info", "overflow") // must not block

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcaster_Telemetry(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Telemetry("holobot/heading", []byte("not json"))
	b.Telemetry("holobot/heading", []byte(`{"h":90}`))

	evt := receive(t, ch)
	if evt.Level != "telemetry" || evt.Topic != "holobot/heading" {
		t.Errorf("event = %+v", evt)
	}
	var data map[string]float64
	if err := json.Unmarshal(evt.Data, &data); err != nil || data["h"] != 90 {
		t.Errorf("data = %s (%v), want h=90", evt.Data, err)
	}
	if len(ch) != 0 {
		t.Error("invalid payload should have been dropped")
	}
}

func TestBroadcastWriter_LinesAndLevels(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "[holobot] [INFO] started\n  \n[holobot] [ERROR] wheel fault\n"
	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	cases := []struct {
		level, msg string
	}{
		{"info", "[holobot] [INFO] started"},
		{"error", "[holobot] [ERROR] wheel fault"},
	}
	for _, tc := range cases {
		evt := receive(t, ch)
		if evt.Level != tc.level || evt.Msg != tc.msg {
			t.Errorf("event = %s/%q, want %s/%q", evt.Level, evt.Msg, tc.level, tc.msg)
		}
	}
	if len(ch) != 0 {
		t.Error("whitespace-only line should not be broadcast")
	}
}

func TestLevelOf(t *testing.T) {
	cases := map[string]string{
		"[holobot] [LIVE] h: 90":          "live",
		"[holobot] [MOTOR] lift out=0.15": "trace",
		"[holobot] [VERBOSE] Drive":       "verbose",
		"[holobot] plain":                 "info",
	}
	for line, want := range cases {
		if got := levelOf(line); got != want {
			t.Errorf("levelOf(%q) = %q, want %q", line, got, want)
		}
	}
}
