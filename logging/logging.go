// Package logging provides real-time console output for the sorting line.
// The JSONL event journal (see telemetry) is the machine-readable record;
// this package is for watching the simulation as it runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a config string to a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[lvl]; ok {
		return lvl
	}
	return LevelInfo
}

// sink is shared by a logger and every logger derived from it, so lines
// from concurrent workers never interleave.
type sink struct {
	mu     sync.Mutex
	output io.Writer
}

// Logger writes leveled lines with an optional component tag.
type Logger struct {
	out       *sink
	minLevel  Level
	component string
}

// New creates a new Logger writing to stdout at INFO.
func New() *Logger {
	return &Logger{
		out:      &sink{output: os.Stdout},
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		out:       l.out,
		minLevel:  l.minLevel,
		component: component,
	}
}

// Component returns the component tag, if any.
func (l *Logger) Component() string {
	return l.component
}

// SetLevel sets the minimum log level. Loggers derived afterwards inherit it.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer for this logger and all loggers sharing
// its sink.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.output = w
	l.out.mu.Unlock()
}

// Fields holds key=value context for a log line.
type Fields map[string]interface{}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.output.Write([]byte(line))
}

// --- Sorting line events ---

// PackagePlaced logs a package pushed onto the belt.
func (l *Logger) PackagePlaced(category string, weight float64, count, capacity int, beltWeight float64) {
	l.Info("package_placed", Fields{
		"category":    category,
		"weight_kg":   round2(weight),
		"belt":        fmt.Sprintf("%d/%d", count, capacity),
		"belt_weight": round2(beltWeight),
	})
}

// PackageRejected logs a package discarded because the belt weight limit would
// be exceeded.
func (l *Logger) PackageRejected(category string, weight, beltWeight, limit float64) {
	l.Debug("package_rejected", Fields{
		"category":    category,
		"weight_kg":   round2(weight),
		"belt_weight": round2(beltWeight),
		"limit":       round2(limit),
	})
}

// TruckDocked logs a truck taking the dock.
func (l *Logger) TruckDocked(truck int) {
	l.Info("truck_docked", Fields{"truck": truck})
}

// PackageLoaded logs a package moved from the belt head into the truck.
func (l *Logger) PackageLoaded(truck int, category string, weight, load, capacity float64) {
	l.Info("package_loaded", Fields{
		"truck":     truck,
		"category":  category,
		"weight_kg": round2(weight),
		"load":      fmt.Sprintf("%.2f/%.2f", load, capacity),
	})
}

// TruckDeparted logs the end of a loading phase.
func (l *Logger) TruckDeparted(truck int, reason string, load, volume float64, items int) {
	l.Info("truck_departed", Fields{
		"truck":     truck,
		"reason":    reason,
		"load_kg":   round2(load),
		"volume_m3": round2(volume),
		"items":     items,
	})
}

// ExpressBatch logs the outcome of an express load.
func (l *Logger) ExpressBatch(requested, admitted int, load float64) {
	l.Info("express_batch", Fields{
		"requested": requested,
		"admitted":  admitted,
		"load_kg":   round2(load),
	})
}

// Command logs an operator command and its outcome.
func (l *Logger) Command(command, source, result string) {
	l.Info("command", Fields{
		"command": command,
		"source":  source,
		"result":  result,
	})
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
