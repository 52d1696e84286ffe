package hid

import (
	"math"
	"sync"
)

// Snapshot is one controller's axes and buttons, sampled once per tick.
type Snapshot struct {
	Axes    []float64 `json:"axes"`
	Buttons []bool    `json:"buttons"`
}

// Axis returns axis i in [-1, 1]. Unknown axes read as 0.
func (s Snapshot) Axis(i int) float64 {
	if i < 0 || i >= len(s.Axes) {
		return 0
	}
	return clampAxis(s.Axes[i])
}

// Button returns button i. Unknown buttons read as released.
func (s Snapshot) Button(i int) bool {
	if i < 0 || i >= len(s.Buttons) {
		return false
	}
	return s.Buttons[i]
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// Source provides controller snapshots by controller index.
type Source interface {
	Snapshot(index int) Snapshot
}

// Static is a Source with fixed snapshots, for tests and bench runs.
type Static struct {
	mu    sync.Mutex
	snaps map[int]Snapshot
}

func NewStatic() *Static {
	return &Static{snaps: make(map[int]Snapshot)}
}

// Set replaces the snapshot for a controller index.
func (s *Static) Set(index int, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[index] = snap
}

func (s *Static) Snapshot(index int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[index]
}
