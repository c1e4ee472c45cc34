// Command sortline runs the warehouse sorting line simulation.
//
// Usage:
//
//	sortline [flags] <N_Trucks> <K_BeltCap> <M_MaxBeltW> <W_TruckCap> <V_TruckVol>
//
// While running, type 1 to force the docked truck to depart, 2 to trigger
// an express load and 3 to shut down. SIGINT and SIGTERM also shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/sortline/config"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/telemetry"
	"github.com/vinayprograms/sortline/warehouse"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the whole program; it returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sortline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML config file (default: sortline.toml, then ~/.config/sortline/sortline.toml)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logFile := fs.String("log-file", "", "write logs to this file instead of stdout")
	events := fs.String("events", "", "append the JSONL event journal to this file")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sortline [flags] %s\n", config.Usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	cfg, used, err := config.Load(*configPath, fs.Args())
	if err == nil {
		applyFlags(&cfg, *logLevel, *logFile, *events)
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		if !strings.HasPrefix(err.Error(), "Usage:") {
			fmt.Fprintf(stderr, "Usage: sortline %s\n", config.Usage)
		}
		return 1
	}

	log := logging.New()
	log.SetOutput(stdout)
	log.SetLevel(logging.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		log.SetOutput(f)
	}
	if used != "" {
		log.Info("config loaded", logging.Fields{"file": used})
	}

	runID := uuid.NewString()
	opts := []warehouse.Option{warehouse.WithRunID(runID), warehouse.WithLogger(log)}
	if cfg.Telemetry.Endpoint != "" {
		provider, err := telemetry.InitProvider(context.Background(), telemetry.ProviderConfig{
			RunID:    runID,
			Endpoint: cfg.Telemetry.Endpoint,
			Protocol: cfg.Telemetry.Protocol,
			Insecure: cfg.Telemetry.Insecure,
		})
		if err != nil {
			log.Warn("tracing disabled", logging.Fields{"error": err.Error()})
		} else {
			opts = append(opts, warehouse.WithProvider(provider), warehouse.WithTracer(provider.Tracer()))
		}
	}

	sim, err := warehouse.New(cfg, opts...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Start(ctx); err != nil {
		log.Error("start failed", logging.Fields{"error": err.Error()})
		sim.Shutdown(context.Background())
		return 1
	}

	stop := sim.Coordinator().HandleSignals(func(sig os.Signal) {
		log.Info("signal received", logging.Fields{"signal": sig.String()})
	})
	defer stop()

	// EOF on stdin only stops reading; the line keeps running until a
	// shutdown command or a signal. The reader ends with run.
	go func() {
		if err := sim.Dispatcher().Run(ctx, stdin, stdout); err != nil {
			log.Error("command reader stopped", logging.Fields{"error": err.Error()})
		}
	}()

	failed := make(chan error, 1)
	go func() { failed <- sim.Wait() }()

	select {
	case <-sim.Halted():
	case <-sim.Coordinator().Done():
	case err := <-failed:
		if err != nil {
			log.Error("worker failed", logging.Fields{"error": err.Error(), "code": string(errors.Code(err))})
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration+time.Second)
	defer scancel()
	err = sim.Shutdown(sctx)

	snap := sim.Snapshot()
	log.Info("simulation stopped", logging.Fields{
		"pushed":   snap.Pushed,
		"loaded":   snap.Loaded,
		"express":  snap.Express,
		"on_belt":  snap.BeltCount,
		"dockings": snap.Dockings,
	})
	if err != nil {
		log.Error("shutdown failed", logging.Fields{"error": err.Error()})
		return 1
	}
	return 0
}

func applyFlags(cfg *config.Config, level, file, events string) {
	if level != "" {
		cfg.Log.Level = level
	}
	if file != "" {
		cfg.Log.File = file
	}
	if events != "" {
		cfg.Telemetry.EventsFile = events
	}
}
