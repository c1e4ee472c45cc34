package warehouse

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/sortline/config"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/parcel"
	"github.com/vinayprograms/sortline/telemetry"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Trucks = 1
	cfg.BeltCapacity = 5
	cfg.MaxBeltWeight = 1000
	cfg.TruckCapacity = 20
	cfg.TruckVolume = 10
	cfg.Seed = 1
	cfg.Timing = config.Timing{
		ProducerInterval: config.D(time.Millisecond),
		WeightBackoff:    config.D(time.Millisecond),
		Poll:             config.D(time.Millisecond),
		Handling:         config.D(time.Millisecond),
		DriveBack:        config.D(5 * time.Millisecond),
		Delivery:         config.D(5 * time.Millisecond),
	}
	cfg.ShutdownTimeout = config.D(5 * time.Second)
	return cfg
}

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestProducer(line *Line) *Producer {
	return NewProducer(line, parcel.CategoryA, parcel.NewGenerator(1), quietLogger(), telemetry.NewNoopExporter())
}

func newTestTruck(line *Line, n int) *Truck {
	return NewTruck(line, n, quietLogger(), telemetry.NewNoopExporter(), telemetry.GetTracer())
}

func newTestExpress(line *Line, seed uint64) *Express {
	return NewExpress(line, parcel.NewGenerator(seed), quietLogger(), telemetry.NewNoopExporter(), telemetry.GetTracer())
}

// placeAll pushes packages through the producer path, failing unless each
// one lands on the belt.
func placeAll(t *testing.T, line *Line, pkgs ...parcel.Package) {
	t.Helper()
	p := newTestProducer(line)
	for _, pkg := range pkgs {
		outcome, err := p.Place(context.Background(), pkg)
		if err != nil || outcome != Placed {
			t.Fatalf("Place(%v %.1fkg) = %v, %v", pkg.Category, pkg.Weight, outcome, err)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// freeUnits drains sem's currently available units without blocking and
// returns how many there were. Drained units are given back.
func freeUnits(sem interface {
	TryAcquire(int64) bool
	Release(int64)
}, max int) int {
	n := 0
	for n < max && sem.TryAcquire(1) {
		n++
	}
	if n > 0 {
		sem.Release(int64(n))
	}
	return n
}

// recordingJournal keeps every event in memory.
type recordingJournal struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingJournal) LogEvent(name string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, telemetry.Event{Name: name, Timestamp: time.Now(), Data: data})
}

func (r *recordingJournal) Flush() error { return nil }
func (r *recordingJournal) Close() error { return nil }

func (r *recordingJournal) named(name string) []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingJournal) all() []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Event(nil), r.events...)
}
