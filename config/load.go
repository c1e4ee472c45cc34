package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/vinayprograms/sortline/errors"
)

// Usage describes the positional launch arguments.
const Usage = "<N_Trucks> <K_BeltCap> <M_MaxBeltW> <W_TruckCap> <V_TruckVol>"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SORTLINE_"

// StandardPaths returns config file locations in priority order.
func StandardPaths() []string {
	paths := []string{"sortline.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sortline", "sortline.toml"))
	}
	return paths
}

// Load builds a Config from defaults, the first config file found (path, or
// StandardPaths when path is empty), the environment and args. It does not
// validate. The returned string is the file used, if any.
func Load(path string, args []string) (Config, string, error) {
	cfg := DefaultConfig()

	used := ""
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, path, err
		}
		used = path
	} else {
		for _, p := range StandardPaths() {
			if _, err := os.Stat(p); err == nil {
				if err := LoadFile(p, &cfg); err != nil {
					return cfg, p, err
				}
				used = p
				break
			}
		}
	}

	if err := LoadEnv(&cfg, ".env"); err != nil {
		return cfg, used, err
	}
	if err := FromArgs(&cfg, args); err != nil {
		return cfg, used, err
	}
	return cfg, used, nil
}

// LoadFile decodes a TOML file over cfg. Keys missing from the file keep
// their current values; unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.InvalidConfig("cannot read "+path, errors.WithCause(err))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.InvalidConfig(fmt.Sprintf("%s: unknown keys %s", path, strings.Join(keys, ", ")))
	}
	return nil
}

// LoadEnv loads envFile into the process environment, if it exists, without
// overriding variables already set, then applies SORTLINE_* overrides to cfg.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return errors.InvalidConfig("cannot read "+envFile, errors.WithCause(err))
		}
	}
	return applyEnv(cfg, os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var firstErr error
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	fail := func(key, value string, err error) {
		if firstErr == nil {
			firstErr = errors.InvalidConfig(fmt.Sprintf("%s%s=%q", EnvPrefix, key, value),
				errors.WithCause(err))
		}
	}

	ints := map[string]*int{
		"TRUCKS":            &cfg.Trucks,
		"BELT_CAPACITY":     &cfg.BeltCapacity,
		"EXPRESS_MIN_BATCH": &cfg.Express.MinBatch,
		"EXPRESS_MAX_BATCH": &cfg.Express.MaxBatch,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, v, err)
				continue
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"MAX_BELT_WEIGHT": &cfg.MaxBeltWeight,
		"TRUCK_CAPACITY":  &cfg.TruckCapacity,
		"TRUCK_VOLUME":    &cfg.TruckVolume,
	}
	for key, dst := range floats {
		if v, ok := get(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(key, v, err)
				continue
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				fail(key, v, errors.New(errors.ErrCodeInvalidConfig, "not a finite number"))
				continue
			}
			*dst = f
		}
	}

	durations := map[string]*Duration{
		"PRODUCER_INTERVAL": &cfg.Timing.ProducerInterval,
		"WEIGHT_BACKOFF":    &cfg.Timing.WeightBackoff,
		"POLL":              &cfg.Timing.Poll,
		"HANDLING":          &cfg.Timing.Handling,
		"DRIVE_BACK":        &cfg.Timing.DriveBack,
		"DELIVERY":          &cfg.Timing.Delivery,
		"HEARTBEAT":         &cfg.Timing.Heartbeat,
		"SHUTDOWN_TIMEOUT":  &cfg.ShutdownTimeout,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				fail(key, v, err)
			}
		}
	}

	strs := map[string]*string{
		"BUS_URL":       &cfg.Bus.URL,
		"BUS_TOKEN":     &cfg.Bus.Token,
		"EVENTS_FILE":   &cfg.Telemetry.EventsFile,
		"OTLP_ENDPOINT": &cfg.Telemetry.Endpoint,
		"OTLP_PROTOCOL": &cfg.Telemetry.Protocol,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FILE":      &cfg.Log.File,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fail("SEED", v, err)
		} else {
			cfg.Seed = seed
		}
	}

	return firstErr
}

// FromArgs applies the positional launch arguments N K M W V. No arguments
// leaves cfg unchanged; any other count is an error. Unparsable numbers are
// reported the same way as non-positive ones.
func FromArgs(cfg *Config, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) != 5 {
		return errors.InvalidConfig("Usage: sortline "+Usage,
			errors.WithMetadata("args", strconv.Itoa(len(args))))
	}

	notPositive := errors.InvalidConfig("All parameters must be positive numbers.")

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return notPositive
	}
	k, err := strconv.Atoi(args[1])
	if err != nil {
		return notPositive
	}
	var f [3]float64
	for i, a := range args[2:] {
		if f[i], err = strconv.ParseFloat(a, 64); err != nil || math.IsNaN(f[i]) || math.IsInf(f[i], 0) {
			return notPositive
		}
	}

	cfg.Trucks, cfg.BeltCapacity = n, k
	cfg.MaxBeltWeight, cfg.TruckCapacity, cfg.TruckVolume = f[0], f[1], f[2]
	return nil
}
