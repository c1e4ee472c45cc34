// Package warehouse runs the sorting line: standard producers feed the belt,
// trucks take turns at the single dock draining it, an express producer
// loads the docked truck directly on demand, and a dispatcher turns operator
// commands into notifications.
//
// Every worker shares one Line. Its mutex guards the belt, the dock
// registration and the counters; three weighted semaphores meter free belt
// slots (EMPTY), occupied belt slots (FULL) and the dock (DOCK). No worker
// holds the mutex across a blocking wait.
package warehouse

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/vinayprograms/sortline/belt"
	"github.com/vinayprograms/sortline/config"
	"github.com/vinayprograms/sortline/parcel"
)

// Line is the state shared by every worker of one simulation.
type Line struct {
	cfg config.Config

	mu    sync.Mutex          // MUTEX
	empty *semaphore.Weighted // EMPTY: free belt slots
	full  *semaphore.Weighted // FULL: occupied belt slots
	dock  *semaphore.Weighted // DOCK: 1 while the dock is free

	// Guarded by mu.
	belt     *belt.Belt
	docked   registration
	counters counters

	// Sticky. Set under mu so a push or load that observes it unset under
	// mu happened before shutdown.
	shutdown atomic.Bool
}

// registration is the truck interface: who holds the dock and what it
// carries.
type registration struct {
	docked   bool
	truck    int
	identity string
	load     float64
	volume   float64
	items    int
}

type counters struct {
	pushed        int
	pushedWeight  float64
	loaded        int
	loadedWeight  float64
	express       int
	expressWeight float64
	dockings      int
}

// NewLine builds the shared state for cfg. It does not validate cfg.
func NewLine(cfg config.Config) *Line {
	k := int64(cfg.BeltCapacity)

	full := semaphore.NewWeighted(k)
	// FULL starts at zero: hold every unit until producers release them.
	full.TryAcquire(k)

	return &Line{
		cfg:   cfg,
		empty: semaphore.NewWeighted(k),
		full:  full,
		dock:  semaphore.NewWeighted(1),
		belt:  belt.New(cfg.BeltCapacity),
	}
}

// Config returns the line's configuration.
func (l *Line) Config() config.Config {
	return l.cfg
}

// ShuttingDown reports whether shutdown has been requested.
func (l *Line) ShuttingDown() bool {
	return l.shutdown.Load()
}

// halt sets the shutdown flag. It reports whether this call set it.
func (l *Line) halt() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.shutdown.Swap(true)
}

// locked runs fn with MUTEX held. The mutex is released on every exit path,
// including a panic in fn.
func (l *Line) locked(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Snapshot is a consistent view of the line taken under MUTEX.
type Snapshot struct {
	BeltCount    int
	BeltCapacity int
	BeltWeight   float64
	BeltHead     int
	BeltTail     int
	Belt         []parcel.Package

	Docked        bool
	Truck         int
	TruckIdentity string
	TruckLoad     float64
	TruckVolume   float64
	TruckItems    int

	Pushed        int
	PushedWeight  float64
	Loaded        int
	LoadedWeight  float64
	Express       int
	ExpressWeight float64
	Dockings      int

	Shutdown bool
}

// Snapshot returns the current state.
func (l *Line) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		BeltCount:    l.belt.Count(),
		BeltCapacity: l.belt.Capacity(),
		BeltWeight:   l.belt.Weight(),
		BeltHead:     l.belt.Head(),
		BeltTail:     l.belt.Tail(),
		Belt:         l.belt.Contents(),

		Docked:        l.docked.docked,
		Truck:         l.docked.truck,
		TruckIdentity: l.docked.identity,
		TruckLoad:     l.docked.load,
		TruckVolume:   l.docked.volume,
		TruckItems:    l.docked.items,

		Pushed:        l.counters.pushed,
		PushedWeight:  l.counters.pushedWeight,
		Loaded:        l.counters.loaded,
		LoadedWeight:  l.counters.loadedWeight,
		Express:       l.counters.express,
		ExpressWeight: l.counters.expressWeight,
		Dockings:      l.counters.dockings,

		Shutdown: l.shutdown.Load(),
	}
}
