// Package config holds the simulation's launch parameters and tunables.
//
// Sources are layered: DefaultConfig, then a TOML file, then a .env file and
// SORTLINE_* environment variables, then the positional N K M W V launch
// arguments. Validate runs last; a Config is read-only after that.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/vinayprograms/sortline/errors"
)

// MaxBeltCapacity is the hard ceiling on belt slots.
const MaxBeltCapacity = 100

// Config is the complete simulation configuration.
type Config struct {
	// Trucks is N, the number of trucks competing for the dock.
	Trucks int `toml:"trucks"`

	// BeltCapacity is K, the number of belt slots.
	BeltCapacity int `toml:"belt_capacity"`

	// MaxBeltWeight is M, the belt weight limit in kg.
	MaxBeltWeight float64 `toml:"max_belt_weight"`

	// TruckCapacity is W, the per-truck weight limit in kg.
	TruckCapacity float64 `toml:"truck_capacity"`

	// TruckVolume is V, the per-truck volume limit in m³.
	TruckVolume float64 `toml:"truck_volume"`

	// Seed makes package generation reproducible. 0 seeds from the clock.
	Seed uint64 `toml:"seed"`

	Timing    Timing    `toml:"timing"`
	Express   Express   `toml:"express"`
	Bus       Bus       `toml:"bus"`
	Telemetry Telemetry `toml:"telemetry"`
	Log       Log       `toml:"log"`

	// ShutdownTimeout bounds the whole teardown.
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Timing holds every fixed delay in the simulation.
type Timing struct {
	// ProducerInterval is the pause between packages from one producer.
	ProducerInterval Duration `toml:"producer_interval"`

	// WeightBackoff is the pause after a package is rejected for weight.
	WeightBackoff Duration `toml:"weight_backoff"`

	// Poll is the empty-belt backoff of a loading truck.
	Poll Duration `toml:"poll"`

	// Handling is the per-item loading delay.
	Handling Duration `toml:"handling"`

	// DriveBack is the pause of a truck that left the dock empty.
	DriveBack Duration `toml:"drive_back"`

	// Delivery is the transit time of a loaded truck.
	Delivery Duration `toml:"delivery"`

	// Heartbeat is the interval between line status heartbeats on the bus.
	// Zero disables them.
	Heartbeat Duration `toml:"heartbeat"`
}

// Express bounds the size of an express batch.
type Express struct {
	MinBatch int `toml:"min_batch"`
	MaxBatch int `toml:"max_batch"`
}

// Bus selects the notification transport. An empty URL uses the in-process
// bus.
type Bus struct {
	URL            string   `toml:"url"`
	Token          string   `toml:"token"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// Telemetry configures the event journal and OTLP tracing. Both are off when
// empty.
type Telemetry struct {
	EventsFile string `toml:"events_file"`
	Endpoint   string `toml:"endpoint"`
	Protocol   string `toml:"protocol"`
	Insecure   bool   `toml:"insecure"`
}

// Log configures console logging.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns configuration with the line's standard timings.
func DefaultConfig() Config {
	return Config{
		Trucks:        3,
		BeltCapacity:  10,
		MaxBeltWeight: 100,
		TruckCapacity: 150,
		TruckVolume:   2,
		Timing: Timing{
			ProducerInterval: D(500 * time.Millisecond),
			WeightBackoff:    D(100 * time.Millisecond),
			Poll:             D(50 * time.Millisecond),
			Handling:         D(100 * time.Millisecond),
			DriveBack:        D(time.Second),
			Delivery:         D(5 * time.Second),
			Heartbeat:        D(time.Second),
		},
		Express: Express{MinBatch: 1, MaxBatch: 5},
		Bus: Bus{
			RequestTimeout: D(2 * time.Second),
		},
		Telemetry: Telemetry{Protocol: "grpc"},
		Log:       Log{Level: "info"},

		ShutdownTimeout: D(30 * time.Second),
	}
}

// Validate checks the launch parameters. Every failure is INVALID_CONFIG.
func (c *Config) Validate() error {
	if c.Trucks <= 0 || c.BeltCapacity <= 0 || !positive(c.MaxBeltWeight) || !positive(c.TruckCapacity) || !positive(c.TruckVolume) {
		return errors.InvalidConfig("All parameters must be positive numbers.")
	}
	if c.BeltCapacity > MaxBeltCapacity {
		return errors.InvalidConfig(fmt.Sprintf("K cannot exceed internal buffer limit (%d).", MaxBeltCapacity),
			errors.WithMetadata("K", fmt.Sprint(c.BeltCapacity)))
	}
	if c.Express.MinBatch < 1 || c.Express.MaxBatch < c.Express.MinBatch {
		return errors.InvalidConfig(fmt.Sprintf("express batch range [%d, %d] is empty", c.Express.MinBatch, c.Express.MaxBatch))
	}

	t := c.Timing
	for name, d := range map[string]Duration{
		"producer_interval": t.ProducerInterval,
		"weight_backoff":    t.WeightBackoff,
		"poll":              t.Poll,
		"handling":          t.Handling,
		"drive_back":        t.DriveBack,
		"delivery":          t.Delivery,
		"heartbeat":         t.Heartbeat,
	} {
		if d.Duration < 0 {
			return errors.InvalidConfig("timing."+name+" must not be negative", errors.WithMetadata("value", d.String()))
		}
	}
	// A zero poll would spin the loading loop.
	if t.Poll.Duration == 0 {
		return errors.InvalidConfig("timing.poll must be positive")
	}
	return nil
}

// positive reports whether f is a finite number above zero. NaN and ±Inf
// fail, so every weight and volume comparison stays meaningful.
func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// Duration is a time.Duration that reads from TOML and the environment as a
// string such as "50ms".
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
