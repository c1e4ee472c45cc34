package warehouse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/config"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/heartbeat"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/parcel"
	"github.com/vinayprograms/sortline/shutdown"
	"github.com/vinayprograms/sortline/telemetry"
)

// Option configures a Simulation.
type Option func(*Simulation)

// WithBus uses b for notifications instead of building one from config.
// The caller keeps ownership of b.
func WithBus(b bus.MessageBus) Option {
	return func(s *Simulation) {
		s.bus = b
		s.ownsBus = false
	}
}

// WithLogger sets the console logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Simulation) { s.log = l }
}

// WithJournal sets the event journal. The simulation closes it on shutdown.
func WithJournal(e telemetry.Exporter) Option {
	return func(s *Simulation) { s.journal = e }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Simulation) { s.tracer = t }
}

// WithProvider hands an OTLP provider to the simulation to flush and stop
// during shutdown.
func WithProvider(p *telemetry.Provider) Option {
	return func(s *Simulation) { s.provider = p }
}

// WithRunID sets the run identifier instead of generating one, so a tracer
// provider built beforehand can carry the same id.
func WithRunID(id string) Option {
	return func(s *Simulation) { s.runID = id }
}

// Simulation owns one sorting line and all of its workers.
type Simulation struct {
	runID string
	cfg   config.Config
	line  *Line

	bus      bus.MessageBus
	ownsBus  bool
	log      *logging.Logger
	journal  telemetry.Exporter
	tracer   *telemetry.Tracer
	provider *telemetry.Provider

	dispatcher *Dispatcher
	producers  []*Producer
	express    *Express
	trucks     []*Truck
	heartbeat  *heartbeat.Sender

	coord *shutdown.Coordinator

	started  atomic.Bool
	cancelMu sync.Mutex
	cancel   context.CancelFunc
	group    errgroup.Group
	finished chan struct{}
	err      error

	haltOnce sync.Once
	halted   chan struct{}
}

// New validates cfg and builds a simulation. Without WithBus it connects to
// NATS when cfg.Bus.URL is set and uses an in-process bus otherwise.
func New(cfg config.Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		runID:    uuid.NewString(),
		cfg:      cfg,
		line:     NewLine(cfg),
		ownsBus:  true,
		finished: make(chan struct{}),
		halted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logging.New()
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}
	if s.journal == nil {
		journal, err := openJournal(cfg, s.runID)
		if err != nil {
			return nil, err
		}
		s.journal = journal
	}
	if s.bus == nil {
		b, err := openBus(cfg)
		if err != nil {
			s.journal.Close()
			return nil, err
		}
		s.bus = b
	}

	seed := cfg.Seed
	for i, c := range parcel.Categories {
		s.producers = append(s.producers, NewProducer(s.line, c, parcel.NewGenerator(derive(seed, i)), s.log, s.journal))
	}
	s.express = NewExpress(s.line, parcel.NewGenerator(derive(seed, len(parcel.Categories))), s.log, s.journal, s.tracer)
	for n := 1; n <= cfg.Trucks; n++ {
		s.trucks = append(s.trucks, NewTruck(s.line, n, s.log, s.journal, s.tracer))
	}
	s.dispatcher = NewDispatcher(s.line, s.bus, s.Halt, s.log, s.journal, s.tracer)
	if interval := cfg.Timing.Heartbeat.Duration; interval > 0 {
		sender, err := heartbeat.NewSender(heartbeat.SenderConfig{
			Bus:      s.bus,
			Interval: interval,
			Source:   s.status,
		})
		if err != nil {
			return nil, errors.InvalidConfig("timing.heartbeat", errors.WithCause(err))
		}
		s.heartbeat = sender
	}

	s.coord = shutdown.NewCoordinator(shutdown.Config{
		Timeout:         cfg.ShutdownTimeout.Duration,
		ContinueOnError: true,
		OnProgress: func(step shutdown.Step) {
			fields := logging.Fields{"step": step.Name, "phase": step.Phase, "duration": step.Duration.String()}
			if step.Err != nil {
				fields["error"] = step.Err.Error()
				s.log.Warn("shutdown step failed", fields)
				return
			}
			s.log.Debug("shutdown step done", fields)
		},
	})
	s.coord.RegisterFunc("halt", shutdown.PhaseHalt, func(context.Context) error {
		s.Halt()
		return nil
	})
	s.coord.RegisterFunc("drain", shutdown.PhaseDrain, s.drain)
	if s.ownsBus {
		s.coord.RegisterFunc("bus", shutdown.PhaseRelease, func(context.Context) error {
			return s.bus.Close()
		})
	}
	s.coord.RegisterFunc("journal", shutdown.PhaseRelease, func(context.Context) error {
		return s.journal.Close()
	})
	if s.provider != nil {
		s.coord.RegisterFunc("tracing", shutdown.PhaseRelease, s.provider.Shutdown)
	}

	return s, nil
}

// derive gives each worker its own stream from one seed. A zero seed stays
// zero so every generator seeds from the clock.
func derive(seed uint64, i int) uint64 {
	if seed == 0 {
		return 0
	}
	return seed + uint64(i)*0x9e3779b97f4a7c15
}

func openJournal(cfg config.Config, runID string) (telemetry.Exporter, error) {
	if cfg.Telemetry.EventsFile == "" {
		return telemetry.NewNoopExporter(), nil
	}
	journal, err := telemetry.NewFileExporter(cfg.Telemetry.EventsFile, runID)
	if err != nil {
		return nil, errors.InvalidConfig("telemetry.events_file", errors.WithCause(err))
	}
	return journal, nil
}

func openBus(cfg config.Config) (bus.MessageBus, error) {
	if cfg.Bus.URL == "" {
		return bus.NewMemoryBus(bus.DefaultConfig()), nil
	}
	ncfg := bus.DefaultNATSConfig()
	ncfg.URL = cfg.Bus.URL
	ncfg.Token = cfg.Bus.Token
	b, err := bus.NewNATSBus(ncfg)
	if err != nil {
		return nil, errors.Bus("connect "+cfg.Bus.URL, err)
	}
	return b, nil
}

// status reports the line for the heartbeat sender.
func (s *Simulation) status() heartbeat.Heartbeat {
	snap := s.line.Snapshot()
	hb := heartbeat.Heartbeat{
		Run:          s.runID,
		Status:       heartbeat.StatusRunning,
		BeltCount:    snap.BeltCount,
		BeltCapacity: snap.BeltCapacity,
		BeltWeight:   snap.BeltWeight,
		Pushed:       snap.Pushed,
		Loaded:       snap.Loaded,
		Express:      snap.Express,
		Dockings:     snap.Dockings,
	}
	if snap.Shutdown {
		hb.Status = heartbeat.StatusStopping
	}
	if snap.Docked {
		hb.Truck = snap.Truck
		hb.TruckLoad = snap.TruckLoad
	}
	return hb
}

// RunID identifies this run in the journal and in traces.
func (s *Simulation) RunID() string { return s.runID }

// Line returns the shared line state.
func (s *Simulation) Line() *Line { return s.line }

// Dispatcher returns the operator command handler.
func (s *Simulation) Dispatcher() *Dispatcher { return s.dispatcher }

// Bus returns the notification bus.
func (s *Simulation) Bus() bus.MessageBus { return s.bus }

// Snapshot returns a consistent view of the line.
func (s *Simulation) Snapshot() Snapshot { return s.line.Snapshot() }

// Start subscribes every worker and runs them until Halt. A worker that hits
// a fatal error stops alone; Wait reports the first such error.
func (s *Simulation) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.Assertion("simulation already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	if s.line.ShuttingDown() {
		cancel()
	}

	// Subscribe before any worker runs so no notification is missed.
	wake, err := s.bus.Subscribe(bus.SubjectExpressWake)
	if err != nil {
		return s.abort(errors.Bus("subscribe express wake", err))
	}
	control, err := s.bus.Subscribe(bus.SubjectControl)
	if err != nil {
		wake.Unsubscribe()
		return s.abort(errors.Bus("subscribe control", err))
	}
	departs := make([]bus.Subscription, len(s.trucks))
	for i, t := range s.trucks {
		if departs[i], err = s.bus.Subscribe(t.Subject()); err != nil {
			for _, d := range departs[:i] {
				d.Unsubscribe()
			}
			wake.Unsubscribe()
			control.Unsubscribe()
			return s.abort(errors.Bus("subscribe "+t.Subject(), err))
		}
	}

	s.log.Info("simulation started", logging.Fields{
		"run":    s.runID,
		"trucks": s.cfg.Trucks,
		"K":      s.cfg.BeltCapacity,
		"M":      s.cfg.MaxBeltWeight,
		"W":      s.cfg.TruckCapacity,
		"V":      s.cfg.TruckVolume,
	})

	for _, p := range s.producers {
		p := p
		s.group.Go(func() error { return recovered(p.log.Component(), func() error { return p.Run(ctx) }) })
	}
	s.group.Go(func() error {
		defer wake.Unsubscribe()
		return recovered("express", func() error { return s.express.Run(ctx, wake) })
	})
	for i, t := range s.trucks {
		t, sub := t, departs[i]
		s.group.Go(func() error {
			defer sub.Unsubscribe()
			return recovered(t.log.Component(), func() error { return t.Run(ctx, sub) })
		})
	}
	if s.heartbeat != nil {
		s.group.Go(func() error {
			return recovered("heartbeat", func() error { return s.heartbeat.Run(ctx) })
		})
	}
	s.group.Go(func() error {
		defer control.Unsubscribe()
		return recovered("dispatcher", func() error { return s.dispatcher.Serve(ctx, control) })
	})

	go func() {
		s.err = s.group.Wait()
		close(s.finished)
	}()
	return nil
}

func (s *Simulation) abort(err error) error {
	s.cancel()
	close(s.finished)
	return err
}

// recovered runs fn and turns a panic into a fatal PANIC error.
func recovered(component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			err = errors.Wrap(err, component+" panicked", errors.WithComponent(component))
		}
	}()
	return fn()
}

// Halt sets the sticky shutdown flag and cancels every worker's waits. It
// does not wait for the workers; see Shutdown and Wait.
func (s *Simulation) Halt() {
	s.haltOnce.Do(func() {
		s.line.halt()
		s.cancelMu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.cancelMu.Unlock()
		s.log.Info("shutdown requested")
		s.journal.LogEvent(telemetry.EventShutdown, map[string]interface{}{"run": s.runID})
		close(s.halted)
	})
}

// Halted is closed once Halt has run.
func (s *Simulation) Halted() <-chan struct{} {
	return s.halted
}

// Wait blocks until every worker has exited and returns the first fatal
// worker error.
func (s *Simulation) Wait() error {
	if !s.started.Load() {
		return nil
	}
	<-s.finished
	return s.err
}

func (s *Simulation) drain(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.finished:
		return s.err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), fmt.Sprintf("waiting for %d workers", s.workerCount()))
	}
}

func (s *Simulation) workerCount() int {
	n := len(s.producers) + len(s.trucks) + 2
	if s.heartbeat != nil {
		n++
	}
	return n
}

// Shutdown halts the line, waits for every worker, then releases the bus,
// journal and tracer provider. It is idempotent and safe to call from
// several goroutines; only the first call does the work.
func (s *Simulation) Shutdown(ctx context.Context) error {
	err := s.coord.Shutdown(ctx)
	if err == nil {
		return nil
	}
	// Surface the step's own error, e.g. the worker failure drain reported.
	for _, step := range s.coord.Report().Steps {
		if step.Err != nil {
			return step.Err
		}
	}
	return err
}

// Coordinator exposes the teardown coordinator, e.g. for signal handling.
func (s *Simulation) Coordinator() *shutdown.Coordinator {
	return s.coord
}
