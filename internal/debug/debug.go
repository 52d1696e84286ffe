package debug

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, calibration, mode changes)
	LevelLive    = 2 // Live info (heading stream, mechanism state changes)
	LevelVerbose = 3 // Verbose (per-tick chassis speeds, config details)
	LevelTrace   = 4 // Trace (actuator commands, GPIO, very low level)
)

var (
	level  int
	logger *log.Logger

	outMu   sync.Mutex
	console io.Writer = os.Stdout
	file    io.Writer
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (startup, calibration, mode changes)
// 2 = live info (heading stream, mechanism modes)
// 3 = verbose (chassis speeds, config)
// 4 = trace (motor outputs, GPIO)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(writer(), "[holobot] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// InitFile adds a size-rotated log file next to the console output.
// maxSizeMB and maxBackups of 0 fall back to lumberjack defaults.
func InitFile(path string, maxSizeMB, maxBackups int) {
	outMu.Lock()
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	outMu.Unlock()
	rewire()
}

// SetOutput replaces the console writer (e.g. to tee into the web status stream).
func SetOutput(w io.Writer) {
	outMu.Lock()
	console = w
	outMu.Unlock()
	rewire()
}

func writer() io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	if file != nil {
		return io.MultiWriter(console, file)
	}
	return console
}

func rewire() {
	if logger != nil {
		logger.SetOutput(writer())
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Mode prints a robot mode transition (level 1).
func Mode(from, to string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Mode: %s -> %s", from, to)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Heading prints one diagnostic sample from the sensor pod (level 2).
func Heading(h, x, sx, y, sy float64) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] h: %f, x: %f, sx: %f, y: %f, sy: %f", h, x, sx, y, sy)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered startup step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Motor prints a commanded actuator output (level 4).
func Motor(name string, value float64) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[MOTOR] %s output=%.3f", name, value)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}
