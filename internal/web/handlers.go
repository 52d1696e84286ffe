package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
	"github.com/cjeanneret/holobot/internal/host"
	"github.com/cjeanneret/holobot/internal/hw/navpod"
	"github.com/cjeanneret/holobot/internal/logic/drive"
	"github.com/cjeanneret/holobot/internal/telemetry"
)

// maxBodyBytes bounds POST bodies; a mode request is a few dozen bytes.
const maxBodyBytes = 1 << 10

// ModeController selects the robot mode. host.Scheduler implements it.
type ModeController interface {
	RequestMode(m host.Mode)
	Mode() host.Mode
}

// ModeRequest is the body of POST /mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// ConfigView is what GET /config exposes to the driver station.
type ConfigView struct {
	Drive       config.DriveConfig `json:"drive"`
	Calibration navpod.Calibration `json:"calibration"`
	HID         config.HIDConfig   `json:"hid"`
	TickMs      int                `json:"tick_ms"`
}

// NewConfigView extracts the driver-station view of cfg.
func NewConfigView(cfg *config.Config) ConfigView {
	return ConfigView{
		Drive:       cfg.Drive,
		Calibration: cfg.Calibration(),
		HID:         cfg.HID,
		TickMs:      cfg.Defaults.TickMs,
	}
}

// Status is the robot summary served by GET /api/status.
type Status struct {
	Mode          string              `json:"mode"`
	Chassis       drive.ChassisSpeeds `json:"chassis"`
	Wheels        [4]float64          `json:"wheels"`
	Faults        uint64              `json:"faults"`
	Ticks         uint64              `json:"ticks"`
	Overruns      uint64              `json:"overruns"`
	DriverStation bool                `json:"driver_station"`
}

// Deps are the collaborators the HTTP handlers read from.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Modes       ModeController
	Config      ConfigView
	// Heading returns the latest diagnostic heading sample. May be nil.
	Heading func() (telemetry.HeadingSample, bool)
	// Status returns the robot summary. May be nil.
	Status func() Status
	// Controller serves the driver-station websocket. May be nil.
	Controller http.Handler
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	staticFS fs.FS
}

func NewHandlers(d Deps, staticFS fs.FS) *Handlers {
	return &Handlers{Deps: d, staticFS: staticFS}
}

// ValidateMode parses a requested mode name.
func ValidateMode(name string) (host.Mode, error) {
	if name == "" {
		return host.Disabled, fmt.Errorf("mode is required")
	}
	return host.ParseMode(name)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleMode handles POST /mode. Disabling is always accepted.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Modes == nil {
		http.Error(w, "mode control not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	mode, err := ValidateMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	previous := h.Modes.Mode()
	h.Modes.RequestMode(mode)
	debug.Info("Mode requested from %s: %s", r.RemoteAddr, mode)
	if h.Broadcaster != nil {
		h.Broadcaster.Broadcast("info", fmt.Sprintf("Mode requested: %s -> %s", previous, mode))
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"mode": mode.String(), "previous": previous.String()})
}

// HandleConfig returns the driver-station view of the configuration.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Config)
}

// HandleHeading returns the latest heading sample, or 503 when the pod is
// absent or has not reported yet.
func (h *Handlers) HandleHeading(w http.ResponseWriter, r *http.Request) {
	if h.Heading == nil {
		http.Error(w, "heading not available", http.StatusServiceUnavailable)
		return
	}
	sample, ok := h.Heading()
	if !ok {
		http.Error(w, "heading not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// HandleStatus returns the robot summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var s Status
	if h.Status != nil {
		s = h.Status()
	} else if h.Modes != nil {
		s.Mode = h.Modes.Mode().String()
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleController hands the request to the driver-station websocket.
func (h *Handlers) HandleController(w http.ResponseWriter, r *http.Request) {
	if h.Controller == nil {
		http.Error(w, "driver station input not configured", http.StatusServiceUnavailable)
		return
	}
	h.Controller.ServeHTTP(w, r)
}

// ServeIndex serves the driver-station page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
