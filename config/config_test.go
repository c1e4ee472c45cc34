package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/sortline/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config valid, got %v", err)
	}
	if cfg.Timing.Poll.Duration != 50*time.Millisecond {
		t.Errorf("expected 50ms poll, got %v", cfg.Timing.Poll)
	}
	if cfg.Timing.Delivery.Duration != 5*time.Second {
		t.Errorf("expected 5s delivery, got %v", cfg.Timing.Delivery)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero trucks", func(c *Config) { c.Trucks = 0 }, true},
		{"negative weight limit", func(c *Config) { c.MaxBeltWeight = -1 }, true},
		{"zero truck volume", func(c *Config) { c.TruckVolume = 0 }, true},
		{"NaN weight limit", func(c *Config) { c.MaxBeltWeight = math.NaN() }, true},
		{"NaN truck capacity", func(c *Config) { c.TruckCapacity = math.NaN() }, true},
		{"infinite truck capacity", func(c *Config) { c.TruckCapacity = math.Inf(1) }, true},
		{"negative infinite volume", func(c *Config) { c.TruckVolume = math.Inf(-1) }, true},
		{"K at ceiling", func(c *Config) { c.BeltCapacity = MaxBeltCapacity }, false},
		{"K above ceiling", func(c *Config) { c.BeltCapacity = MaxBeltCapacity + 1 }, true},
		{"empty express range", func(c *Config) { c.Express.MinBatch, c.Express.MaxBatch = 3, 2 }, true},
		{"negative delay", func(c *Config) { c.Timing.Delivery = D(-time.Second) }, true},
		{"zero poll", func(c *Config) { c.Timing.Poll = D(0) }, true},
		{"zero handling", func(c *Config) { c.Timing.Handling = D(0) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestValidateMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BeltCapacity = 101
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "K cannot exceed internal buffer limit (100).") {
		t.Errorf("unexpected message %q", got)
	}
}

func TestFromArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(*testing.T, Config)
	}{
		{
			name: "no args keeps config",
			args: nil,
			check: func(t *testing.T, c Config) {
				if c.Trucks != DefaultConfig().Trucks {
					t.Errorf("expected default trucks, got %d", c.Trucks)
				}
			},
		},
		{
			name: "all five",
			args: []string{"4", "20", "80.5", "120", "1.5"},
			check: func(t *testing.T, c Config) {
				if c.Trucks != 4 || c.BeltCapacity != 20 || c.MaxBeltWeight != 80.5 || c.TruckCapacity != 120 || c.TruckVolume != 1.5 {
					t.Errorf("unexpected config %+v", c)
				}
			},
		},
		{name: "too few", args: []string{"1", "2"}, wantErr: true},
		{name: "not a number", args: []string{"x", "20", "80", "120", "1"}, wantErr: true},
		{name: "bad float", args: []string{"1", "20", "80", "heavy", "1"}, wantErr: true},
		{name: "NaN limits", args: []string{"1", "5", "NaN", "NaN", "NaN"}, wantErr: true},
		{name: "infinite capacity", args: []string{"1", "5", "80", "Inf", "1"}, wantErr: true},
		{name: "negative infinite volume", args: []string{"1", "5", "80", "120", "-Inf"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := FromArgs(&cfg, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromArgs() = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestFromArgsNonPositiveFailsValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := FromArgs(&cfg, []string{"0", "10", "50", "50", "1"}); err != nil {
		t.Fatalf("FromArgs error: %v", err)
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "All parameters must be positive numbers.") {
		t.Fatalf("expected positive-numbers error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortline.toml")
	content := `
trucks = 5
belt_capacity = 12
seed = 99

[timing]
poll = "5ms"
delivery = "250ms"

[express]
max_batch = 3

[bus]
url = "nats://localhost:4222"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if cfg.Trucks != 5 || cfg.BeltCapacity != 12 || cfg.Seed != 99 {
		t.Errorf("unexpected top-level values %+v", cfg)
	}
	if cfg.Timing.Poll.Duration != 5*time.Millisecond || cfg.Timing.Delivery.Duration != 250*time.Millisecond {
		t.Errorf("unexpected timing %+v", cfg.Timing)
	}
	// Untouched keys keep defaults.
	if cfg.Timing.Handling.Duration != 100*time.Millisecond {
		t.Errorf("expected default handling, got %v", cfg.Timing.Handling)
	}
	if cfg.Express.MinBatch != 1 || cfg.Express.MaxBatch != 3 {
		t.Errorf("unexpected express %+v", cfg.Express)
	}
	if cfg.Bus.URL != "nats://localhost:4222" {
		t.Errorf("unexpected bus url %q", cfg.Bus.URL)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortline.toml")
	os.WriteFile(path, []byte("truks = 5\n"), 0644)

	cfg := DefaultConfig()
	err := LoadFile(path, &cfg)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortline.toml")
	os.WriteFile(path, []byte("[timing]\npoll = \"soon\"\n"), 0644)

	cfg := DefaultConfig()
	if err := LoadFile(path, &cfg); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SORTLINE_TRUCKS":            "6",
		"SORTLINE_TRUCK_CAPACITY":    "42.5",
		"SORTLINE_POLL":              "2ms",
		"SORTLINE_BUS_URL":           "nats://bus:4222",
		"SORTLINE_SEED":              "17",
		"SORTLINE_LOG_LEVEL":         " debug ",
		"SORTLINE_EXPRESS_MAX_BATCH": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := applyEnv(&cfg, lookup); err != nil {
		t.Fatalf("applyEnv error: %v", err)
	}

	if cfg.Trucks != 6 || cfg.TruckCapacity != 42.5 || cfg.Seed != 17 {
		t.Errorf("unexpected numeric overrides %+v", cfg)
	}
	if cfg.Timing.Poll.Duration != 2*time.Millisecond {
		t.Errorf("expected 2ms poll, got %v", cfg.Timing.Poll)
	}
	if cfg.Bus.URL != "nats://bus:4222" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected string overrides bus=%q level=%q", cfg.Bus.URL, cfg.Log.Level)
	}
	if cfg.Express.MaxBatch != 5 {
		t.Errorf("empty variable should not override, got %d", cfg.Express.MaxBatch)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "SORTLINE_BELT_CAPACITY" {
			return "lots", true
		}
		return "", false
	}
	cfg := DefaultConfig()
	if err := applyEnv(&cfg, lookup); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestApplyEnvRejectsNonFinite(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(v, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == "SORTLINE_TRUCK_CAPACITY" {
					return v, true
				}
				return "", false
			}
			cfg := DefaultConfig()
			if err := applyEnv(&cfg, lookup); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
			if cfg.TruckCapacity != DefaultConfig().TruckCapacity {
				t.Errorf("non-finite override applied: %v", cfg.TruckCapacity)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	os.WriteFile(envFile, []byte("SORTLINE_BELT_CAPACITY=33\n"), 0644)
	t.Cleanup(func() { os.Unsetenv("SORTLINE_BELT_CAPACITY") })

	cfg := DefaultConfig()
	if err := LoadEnv(&cfg, envFile); err != nil {
		t.Fatalf("LoadEnv error: %v", err)
	}
	if cfg.BeltCapacity != 33 {
		t.Errorf("expected 33 from .env, got %d", cfg.BeltCapacity)
	}

	// A missing .env is not an error.
	if err := LoadEnv(&cfg, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("expected missing .env ignored, got %v", err)
	}
}

func TestLoadLayersArgsLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortline.toml")
	os.WriteFile(path, []byte("trucks = 9\nbelt_capacity = 9\n"), 0644)

	cfg, used, err := Load(path, []string{"2", "8", "40", "60", "1"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if used != path {
		t.Errorf("expected %s used, got %q", path, used)
	}
	if cfg.Trucks != 2 || cfg.BeltCapacity != 8 {
		t.Errorf("expected args to win, got trucks=%d K=%d", cfg.Trucks, cfg.BeltCapacity)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	out, _ := d.MarshalText()
	if string(out) != "1m30s" {
		t.Errorf("expected 1m30s, got %s", out)
	}
}
