package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/host"
	"github.com/cjeanneret/holobot/internal/hw/navpod"
)

// HeadingSample is one diagnostic heading/position sample.
type HeadingSample struct {
	navpod.Update
	Time time.Time `json:"time"`
}

// ModeEvent records a robot mode transition.
type ModeEvent struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Time time.Time `json:"time"`
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Sink receives every message the stream emits (e.g. the web status stream).
type Sink func(topic string, payload []byte)

// Stream fans diagnostics out to the log, an optional Publisher and sinks.
// Publishing happens on the stream's own goroutine so callers never wait
// on the network.
type Stream struct {
	pub    Publisher
	prefix string
	now    func() time.Time

	mu     sync.Mutex
	latest HeadingSample
	have   bool
	sinks  []Sink

	queue   chan message
	done    chan struct{}
	dropped atomic.Int64
	closing sync.Once
}

// NewStream starts the publishing goroutine. pub may be nil.
func NewStream(pub Publisher, prefix string) *Stream {
	s := &Stream{
		pub:    pub,
		prefix: prefix,
		now:    time.Now,
		queue:  make(chan message, 64),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for m := range s.queue {
		s.mu.Lock()
		sinks := s.sinks
		s.mu.Unlock()
		for _, sink := range sinks {
			sink(m.topic, m.payload)
		}
		if s.pub != nil {
			if err := s.pub.Publish(m.topic, m.payload, m.retained); err != nil {
				debug.Error(err)
			}
		}
	}
}

// AddSink registers a receiver for every emitted message.
func (s *Stream) AddSink(fn Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, fn)
}

// OnUpdate is the heading subscription callback: it logs the sample, keeps
// it as the latest and queues it for publishing.
func (s *Stream) OnUpdate(u navpod.Update) {
	debug.Heading(u.H, u.X, u.SX, u.Y, u.SY)
	sample := HeadingSample{Update: u, Time: s.now()}

	s.mu.Lock()
	s.latest = sample
	s.have = true
	s.mu.Unlock()

	s.emit(s.prefix+"/heading", sample, false)
}

// Latest returns the most recent heading sample, if any arrived.
func (s *Stream) Latest() (HeadingSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.have
}

// ModeChanged queues a retained mode event. Its signature matches
// host.Scheduler.OnModeChange.
func (s *Stream) ModeChanged(from, to host.Mode) {
	s.emit(s.prefix+"/mode", ModeEvent{From: from.String(), To: to.String(), Time: s.now()}, true)
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Stream) emit(topic string, v interface{}, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		debug.Error(fmt.Errorf("telemetry encode %s: %w", topic, err))
		return
	}
	select {
	case s.queue <- message{topic: topic, payload: payload, retained: retained}:
	default:
		s.dropped.Add(1)
	}
}

// Close flushes queued messages and closes the publisher.
// No OnUpdate or ModeChanged call may follow.
func (s *Stream) Close() {
	s.closing.Do(func() {
		close(s.queue)
		<-s.done
		if s.pub != nil {
			s.pub.Close()
		}
	})
}
