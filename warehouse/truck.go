package warehouse

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/parcel"
	"github.com/vinayprograms/sortline/telemetry"
)

// Reasons a truck leaves the dock.
const (
	DepartFull     = "full"
	DepartNoFit    = "next package does not fit"
	DepartForced   = "forced"
	DepartShutdown = "shutdown"
)

// Departure describes one finished loading phase.
type Departure struct {
	Reason string
	Items  int
	Load   float64
	Volume float64
}

// Truck competes for the dock, drains the belt while docked, then delivers
// and comes back. ForceDeparture requests arrive on its own depart subject.
type Truck struct {
	number   int
	identity string

	line    *Line
	depart  bus.Subscription
	log     *logging.Logger
	journal telemetry.Exporter
	tracer  *telemetry.Tracer

	span trace.Span
}

// NewTruck creates truck number n with a fresh identity. Subscribe its
// depart subject (Truck.Subject) before calling Run.
func NewTruck(line *Line, n int, log *logging.Logger, journal telemetry.Exporter, tracer *telemetry.Tracer) *Truck {
	return &Truck{
		number:   n,
		identity: uuid.NewString(),
		line:     line,
		log:      log.WithComponent(fmt.Sprintf("truck-%d", n)),
		journal:  journal,
		tracer:   tracer,
	}
}

// Number returns the truck's 1-based number.
func (t *Truck) Number() int { return t.number }

// Identity returns the handle the dispatcher addresses departures to.
func (t *Truck) Identity() string { return t.identity }

// Subject returns the truck's depart subject.
func (t *Truck) Subject() string { return bus.SubjectDepart(t.identity) }

// Run cycles Queued, Loading, Delivering until shutdown. depart delivers
// ForceDeparture requests. A nil return means a clean stop.
func (t *Truck) Run(ctx context.Context, depart bus.Subscription) error {
	t.depart = depart
	timing := t.line.cfg.Timing

	for {
		ok, err := t.Dock(ctx)
		if err != nil {
			if errors.IsCanceled(err) || errors.Is(err, errors.ErrCodeTimeout) {
				return nil
			}
			return t.fail(err)
		}
		if !ok {
			return nil
		}

		reason, err := t.Load(ctx)
		dep, uerr := t.Undock(reason)
		if uerr != nil && err == nil {
			err = uerr
		}
		if err != nil {
			return t.fail(err)
		}

		if t.line.ShuttingDown() {
			return nil
		}
		if dep.Load == 0 {
			t.log.Info("left empty, driving back")
			if !pause(ctx, timing.DriveBack.Duration) {
				return nil
			}
			continue
		}
		t.log.Info("delivering", logging.Fields{"load_kg": dep.Load})
		if !pause(ctx, timing.Delivery.Duration) {
			return nil
		}
	}
}

func (t *Truck) fail(err error) error {
	t.log.Error("truck stopped", logging.Fields{"error": err.Error()})
	return errors.Wrap(err, fmt.Sprintf("truck %d", t.number), errors.WithComponent(t.log.Component()))
}

// Dock waits for the dock and registers the truck. It reports false, with
// the dock released again, when shutdown was set while waiting.
func (t *Truck) Dock(ctx context.Context) (bool, error) {
	if err := t.line.acquireDock(ctx); err != nil {
		return false, err
	}
	if t.line.ShuttingDown() {
		return false, t.line.releaseDock()
	}

	// A request aimed at an earlier loading phase must not end this one.
	t.drainDepart()

	err := t.line.locked(func() error {
		if t.line.docked.docked {
			return errors.Assertion(fmt.Sprintf("truck %d docking while truck %d is registered", t.number, t.line.docked.truck))
		}
		t.line.docked = registration{docked: true, truck: t.number, identity: t.identity}
		t.line.counters.dockings++
		return nil
	})
	if err != nil {
		if rerr := t.line.releaseDock(); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, err
	}

	_, t.span = t.tracer.StartDockSpan(ctx, t.number, t.identity)
	t.log.TruckDocked(t.number)
	t.journal.LogEvent(telemetry.EventTruckDocked, map[string]interface{}{
		"truck":    t.number,
		"identity": t.identity,
	})
	return true, nil
}

func (t *Truck) drainDepart() {
	if t.depart == nil {
		return
	}
	for {
		select {
		case <-t.depart.Messages():
		default:
			return
		}
	}
}

func (t *Truck) departRequested() bool {
	if t.depart == nil {
		return false
	}
	select {
	case _, ok := <-t.depart.Messages():
		return ok
	default:
		return false
	}
}

// Load pops packages from the belt head into the truck until it is full,
// the head package does not fit, a ForceDeparture arrives, or shutdown. It
// returns why loading ended. FULL is polled without blocking so a departure
// is noticed on an empty belt.
func (t *Truck) Load(ctx context.Context) (string, error) {
	cfg := t.line.cfg
	for {
		if t.departRequested() {
			return DepartForced, nil
		}
		if t.line.ShuttingDown() || ctx.Err() != nil {
			return DepartShutdown, nil
		}

		var atCapacity bool
		t.line.locked(func() error {
			d := t.line.docked
			atCapacity = d.load >= cfg.TruckCapacity || d.volume >= cfg.TruckVolume
			return nil
		})
		if atCapacity {
			return DepartFull, nil
		}

		if !t.line.tryAcquireFull() {
			if !pause(ctx, cfg.Timing.Poll.Duration) {
				return DepartShutdown, nil
			}
			continue
		}

		reason, err := t.take()
		if err != nil {
			return DepartShutdown, err
		}
		if reason != "" {
			return reason, nil
		}

		if !pause(ctx, cfg.Timing.Handling.Duration) {
			return DepartShutdown, nil
		}
	}
}

// take consumes the head package under a FULL reservation held by the
// caller. A non-empty reason means nothing was consumed and the reservation
// went back to FULL.
func (t *Truck) take() (reason string, err error) {
	reserved := true
	defer func() {
		if reserved {
			if rerr := t.line.releaseFull(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	cfg := t.line.cfg
	var (
		pkg  parcel.Package
		load float64
	)
	err = t.line.locked(func() error {
		if t.line.shutdown.Load() {
			reason = DepartShutdown
			return nil
		}
		head, err := t.line.belt.Peek()
		if err != nil {
			return errors.Assertion("FULL reserved on an empty belt", errors.WithCause(err))
		}
		d := &t.line.docked
		if d.load+head.Weight > cfg.TruckCapacity || d.volume+head.Volume > cfg.TruckVolume {
			reason = DepartNoFit
			return nil
		}
		pkg, _ = t.line.belt.Pop()
		d.load += pkg.Weight
		d.volume += pkg.Volume
		d.items++
		t.line.counters.loaded++
		t.line.counters.loadedWeight += pkg.Weight
		load = d.load
		return nil
	})
	if err != nil || reason != "" {
		return reason, err
	}

	// The package left the belt: its slot is free again.
	reserved = false
	if err := t.line.releaseEmpty(); err != nil {
		return "", err
	}

	t.log.PackageLoaded(t.number, pkg.Category.String(), pkg.Weight, load, cfg.TruckCapacity)
	t.journal.LogEvent(telemetry.EventPackageLoaded, map[string]interface{}{
		"truck":     t.number,
		"id":        pkg.ID,
		"category":  pkg.Category.String(),
		"weight_kg": pkg.Weight,
		"load_kg":   load,
	})
	return "", nil
}

// Undock clears the registration, frees the dock and reports what the
// truck left with.
func (t *Truck) Undock(reason string) (Departure, error) {
	dep := Departure{Reason: reason}
	err := t.line.locked(func() error {
		if !t.line.docked.docked || t.line.docked.identity != t.identity {
			return errors.Assertion(fmt.Sprintf("truck %d undocking without holding the dock", t.number))
		}
		d := t.line.docked
		dep.Items, dep.Load, dep.Volume = d.items, d.load, d.volume
		t.line.docked = registration{}
		return nil
	})
	if err != nil {
		return dep, err
	}

	t.log.TruckDeparted(t.number, dep.Reason, dep.Load, dep.Volume, dep.Items)
	t.journal.LogEvent(telemetry.EventTruckDeparted, map[string]interface{}{
		"truck":     t.number,
		"reason":    dep.Reason,
		"items":     dep.Items,
		"load_kg":   dep.Load,
		"volume_m3": dep.Volume,
	})
	if t.span != nil {
		t.tracer.EndDockSpan(t.span, telemetry.DockSpanOptions{
			Reason:   dep.Reason,
			Items:    dep.Items,
			LoadKg:   dep.Load,
			VolumeM3: dep.Volume,
		}, nil)
		t.span = nil
	}

	return dep, t.line.releaseDock()
}
