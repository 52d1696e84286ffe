package hid

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/holobot/internal/debug"
)

// Frame is what a driver-station client sends for one controller.
type Frame struct {
	Index   int       `json:"index"`
	Axes    []float64 `json:"axes"`
	Buttons []bool    `json:"buttons"`
}

type stamped struct {
	snap Snapshot
	at   time.Time
}

// WebSocketSource keeps the latest frame per controller index, as sent by a
// single driver-station client. Frames older than staleAfter read as neutral
// (axes 0, buttons released) so a dropped link cannot leave the robot moving.
type WebSocketSource struct {
	staleAfter time.Duration
	now        func() time.Time
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	frames map[int]stamped
	inUse  bool
}

func NewWebSocketSource(staleAfter time.Duration) *WebSocketSource {
	return &WebSocketSource{
		staleAfter: staleAfter,
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		frames: make(map[int]stamped),
	}
}

// Update stores f as the latest state of its controller.
func (s *WebSocketSource) Update(f Frame) {
	axes := make([]float64, len(f.Axes))
	for i, v := range f.Axes {
		axes[i] = clampAxis(v)
	}
	buttons := append([]bool(nil), f.Buttons...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[f.Index] = stamped{snap: Snapshot{Axes: axes, Buttons: buttons}, at: s.now()}
}

func (s *WebSocketSource) Snapshot(index int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[index]
	if !ok || s.now().Sub(f.at) > s.staleAfter {
		return Snapshot{}
	}
	return f.snap
}

// Connected reports whether a driver-station client is attached.
func (s *WebSocketSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

func (s *WebSocketSource) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse {
		return errors.New("driver station already connected")
	}
	s.inUse = true
	return nil
}

func (s *WebSocketSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse = false
	s.frames = make(map[int]stamped)
}

// ServeHTTP upgrades to a websocket and reads JSON frames until the client
// goes away. Only one client is accepted at a time.
func (s *WebSocketSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache")
	if err := s.acquire(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.release()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(err)
		return
	}
	defer ws.Close()
	debug.Info("Driver station connected from %s", r.RemoteAddr)

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			debug.Info("Driver station disconnected: %v", err)
			return
		}
		if f.Index < 0 {
			continue
		}
		s.Update(f)
	}
}
