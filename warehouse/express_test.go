package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/errors"
)

func dockTestTruck(t *testing.T, line *Line) *Truck {
	t.Helper()
	tr := newTestTruck(line, 1)
	if ok, err := tr.Dock(context.Background()); !ok || err != nil {
		t.Fatalf("Dock() = %v, %v", ok, err)
	}
	return tr
}

func TestExpressWithoutTruckLoadsNothing(t *testing.T) {
	line := NewLine(testConfig())
	e := newTestExpress(line, 1)

	res, err := e.Load(context.Background())
	if !errors.Is(err, errors.ErrCodeNotDocked) {
		t.Fatalf("expected NOT_DOCKED, got %v", err)
	}
	if errors.IsFatal(err) {
		t.Fatal("NOT_DOCKED must not be fatal")
	}
	if res.Admitted != 0 {
		t.Fatalf("expected nothing admitted, got %d", res.Admitted)
	}
	if snap := line.Snapshot(); snap.TruckLoad != 0 || snap.Express != 0 {
		t.Fatalf("expected no load, got %+v", snap)
	}
}

func TestExpressLoadsDockedTruck(t *testing.T) {
	cfg := testConfig()
	cfg.TruckCapacity = 1000
	cfg.TruckVolume = 100
	line := NewLine(cfg)
	dockTestTruck(t, line)
	e := newTestExpress(line, 1)

	res, err := e.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if res.Requested < 1 || res.Requested > 5 {
		t.Fatalf("batch size %d outside [1, 5]", res.Requested)
	}
	// Everything fits a truck this large.
	if res.Admitted != res.Requested {
		t.Fatalf("expected all %d admitted, got %d", res.Requested, res.Admitted)
	}
	snap := line.Snapshot()
	if snap.TruckLoad <= 0 || snap.TruckLoad != res.Load {
		t.Fatalf("expected truck load %v > 0, got %v", res.Load, snap.TruckLoad)
	}
	// Express packages never touch the belt.
	if snap.BeltCount != 0 || snap.Pushed != 0 {
		t.Fatalf("express used the belt: %+v", snap)
	}
}

func TestExpressRespectsTinyCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.TruckCapacity = 0.5
	cfg.TruckVolume = 0.05
	line := NewLine(cfg)
	dockTestTruck(t, line)

	for seed := uint64(1); seed <= 20; seed++ {
		if _, err := newTestExpress(line, seed).Load(context.Background()); err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		snap := line.Snapshot()
		if snap.TruckLoad > cfg.TruckCapacity || snap.TruckVolume > cfg.TruckVolume {
			t.Fatalf("truck over capacity: load=%v volume=%v", snap.TruckLoad, snap.TruckVolume)
		}
	}
}

func TestExpressPartialAdmission(t *testing.T) {
	cfg := testConfig()
	cfg.TruckCapacity = 30
	cfg.TruckVolume = 100
	cfg.Express.MinBatch, cfg.Express.MaxBatch = 5, 5
	line := NewLine(cfg)
	dockTestTruck(t, line)
	e := newTestExpress(line, 11)

	// Repeated batches against a small truck must skip items yet keep going.
	skipped := false
	for i := 0; i < 20; i++ {
		res, err := e.Load(context.Background())
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if res.Admitted < res.Requested {
			skipped = true
		}
		if res.Load > cfg.TruckCapacity {
			t.Fatalf("load %v exceeds %v", res.Load, cfg.TruckCapacity)
		}
	}
	if !skipped {
		t.Fatal("expected some packages skipped")
	}
}

func TestExpressRunWakesOnNotification(t *testing.T) {
	cfg := testConfig()
	cfg.TruckCapacity = 1000
	line := NewLine(cfg)
	dockTestTruck(t, line)

	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	wake, _ := b.Subscribe(bus.SubjectExpressWake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestExpress(line, 5).Run(ctx, wake) }()

	// Idle: nothing happens without a wake.
	time.Sleep(10 * time.Millisecond)
	if line.Snapshot().Express != 0 {
		t.Fatal("express loaded without a wake")
	}

	b.Publish(bus.SubjectExpressWake, nil)
	waitFor(t, time.Second, "express batch", func() bool { return line.Snapshot().Express > 0 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("express did not stop")
	}
}

func TestExpressStopsAfterShutdown(t *testing.T) {
	line := NewLine(testConfig())
	dockTestTruck(t, line)
	line.halt()

	res, err := newTestExpress(line, 1).Load(context.Background())
	if !errors.IsCanceled(err) || res.Admitted != 0 {
		t.Fatalf("expected CANCELED with nothing admitted, got %+v, %v", res, err)
	}
}
