package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent is one message on the SSE status stream: either a log line
// or a telemetry sample (Topic and Data set).
type StatusEvent struct {
	Time  string          `json:"t"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusBroadcaster distributes status events to every connected SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of encoded events and a cleanup function the
// caller must run when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// slow client: drop
		}
	}
}

// Broadcast sends a log line: {"t":"...","l":"info","msg":"..."}
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// Telemetry sends a telemetry sample. Its signature matches telemetry.Sink.
// Payloads that are not valid JSON are dropped.
func (b *StatusBroadcaster) Telemetry(topic string, payload []byte) {
	if !json.Valid(payload) {
		return
	}
	b.send(StatusEvent{Level: "telemetry", Topic: topic, Data: json.RawMessage(payload)})
}

// levelOf maps a debug log line to an event level from its tag.
func levelOf(line string) string {
	for tag, level := range map[string]string{
		"[ERROR]":   "error",
		"[LIVE]":    "live",
		"[VERBOSE]": "verbose",
		"[TRACE]":   "trace",
		"[MOTOR]":   "trace",
		"[GPIO]":    "trace",
	} {
		if strings.Contains(line, tag) {
			return level
		}
	}
	return "info"
}

// BroadcastWriter adapts the broadcaster to io.Writer so the debug logger can
// be teed into the status stream. Each non-empty line becomes one event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			w.b.Broadcast(levelOf(line), line)
		}
	}
	return len(p), nil
}
