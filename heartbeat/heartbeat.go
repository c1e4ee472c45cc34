// Package heartbeat publishes the sorting line's status at a fixed interval
// and lets a remote operator watch it.
//
// A Sender runs inside the simulation and publishes a Heartbeat to Subject.
// A Monitor subscribes, keeps the latest heartbeat and reports when the line
// goes quiet, e.g. after the process died without a clean shutdown.
//
//	sortline ──── sortline.heartbeat ────> sortctl -watch
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/sortline/bus"
)

// ErrInvalidConfig is returned by constructors for an unusable config.
var ErrInvalidConfig = errors.New("invalid heartbeat configuration")

// Subject carries line heartbeats.
const Subject = bus.SubjectRoot + ".heartbeat"

// Line status values.
const (
	StatusRunning  = "running"
	StatusStopping = "stopping"
)

// Heartbeat is one status report from a running line.
type Heartbeat struct {
	Run       string    `json:"run"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`

	BeltCount    int     `json:"belt_count"`
	BeltCapacity int     `json:"belt_capacity"`
	BeltWeight   float64 `json:"belt_weight_kg"`

	// Truck is the docked truck's number, 0 when the dock is free.
	Truck     int     `json:"truck,omitempty"`
	TruckLoad float64 `json:"truck_load_kg,omitempty"`

	Pushed   int `json:"pushed"`
	Loaded   int `json:"loaded"`
	Express  int `json:"express"`
	Dockings int `json:"dockings"`
}

// Marshal serializes a heartbeat to JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal deserializes a heartbeat from JSON.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// String renders the heartbeat as one operator-facing line.
func (h *Heartbeat) String() string {
	dock := "dock free"
	if h.Truck != 0 {
		dock = fmt.Sprintf("truck %d docked (%.2fkg)", h.Truck, h.TruckLoad)
	}
	return fmt.Sprintf("%s %s belt %d/%d %.2fkg, %s, pushed=%d loaded=%d express=%d dockings=%d",
		h.Timestamp.Format(time.TimeOnly), h.Status,
		h.BeltCount, h.BeltCapacity, h.BeltWeight, dock,
		h.Pushed, h.Loaded, h.Express, h.Dockings)
}

// Source produces the heartbeat to publish next.
type Source func() Heartbeat

// SenderConfig configures a Sender.
type SenderConfig struct {
	Bus bus.MessageBus

	// Interval between heartbeats. Default: 1 second
	Interval time.Duration

	Source Source
}

// Validate checks the configuration.
func (c *SenderConfig) Validate() error {
	if c.Bus == nil || c.Source == nil {
		return ErrInvalidConfig
	}
	return nil
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Bus bus.MessageBus

	// Timeout after which a silent line is reported quiet.
	// Should be 2-3x the sender interval. Default: 3 seconds
	Timeout time.Duration

	// Buffer is the capacity of the Heartbeats channel. Default: 16
	Buffer int
}

// Validate checks the configuration.
func (c *MonitorConfig) Validate() error {
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	return nil
}
