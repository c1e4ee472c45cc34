// Package telemetry records what the sorting line did: a JSONL event journal
// of placements, loads, departures, express batches and commands, plus
// OpenTelemetry spans when an OTLP endpoint is configured.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Journal event names.
const (
	EventPackagePlaced = "package_placed"
	EventTruckDocked   = "truck_docked"
	EventPackageLoaded = "package_loaded"
	EventTruckDeparted = "truck_departed"
	EventExpressBatch  = "express_batch"
	EventCommand       = "command"
	EventShutdown      = "shutdown"
)

// Exporter is the interface for event journals.
type Exporter interface {
	// LogEvent records an event with the given name and data.
	LogEvent(name string, data map[string]interface{})
	// Flush writes any buffered data.
	Flush() error
	// Close closes the exporter.
	Close() error
}

// Event is one journal line.
type Event struct {
	Name      string                 `json:"name"`
	Run       string                 `json:"run,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewExporter creates an exporter by protocol: "file" writes JSONL to
// target, "noop" or "" discards.
func NewExporter(protocol, target, runID string) (Exporter, error) {
	switch protocol {
	case "file":
		return NewFileExporter(target, runID)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown telemetry protocol: %s", protocol)
	}
}

// --- File Exporter ---

// FileExporter appends events to a file, one JSON object per line.
type FileExporter struct {
	run string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFileExporter opens path for appending.
func NewFileExporter(path, runID string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}
	return &FileExporter{file: file, run: runID}, nil
}

func (e *FileExporter) LogEvent(name string, data map[string]interface{}) {
	line, err := json.Marshal(Event{
		Name:      name,
		Run:       e.run,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.file.Write(line)
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.file.Sync()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) LogEvent(name string, data map[string]interface{}) {}
func (e *NoopExporter) Flush() error                                      { return nil }
func (e *NoopExporter) Close() error                                      { return nil }
