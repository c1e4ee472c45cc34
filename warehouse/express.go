package warehouse

import (
	"context"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/parcel"
	"github.com/vinayprograms/sortline/telemetry"
)

// ExpressResult summarizes one express batch.
type ExpressResult struct {
	Truck     int
	Requested int
	Admitted  int
	Weight    float64
	Load      float64
	Volume    float64
}

// Express loads short batches of packages straight into the docked truck,
// bypassing the belt. It idles until woken on bus.SubjectExpressWake.
type Express struct {
	line    *Line
	gen     *parcel.Generator
	log     *logging.Logger
	journal telemetry.Exporter
	tracer  *telemetry.Tracer
}

// NewExpress creates the express producer.
func NewExpress(line *Line, gen *parcel.Generator, log *logging.Logger, journal telemetry.Exporter, tracer *telemetry.Tracer) *Express {
	return &Express{
		line:    line,
		gen:     gen,
		log:     log.WithComponent("express"),
		journal: journal,
		tracer:  tracer,
	}
}

// Run waits on wake and loads one batch per notification until ctx ends,
// shutdown is observed, or the subscription closes.
func (e *Express) Run(ctx context.Context, wake bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-wake.Messages():
			if !ok || e.line.ShuttingDown() {
				return nil
			}
			e.log.Info("wake received")
			if _, err := e.Load(ctx); errors.IsFatal(err) {
				return errors.Wrap(err, "express", errors.WithComponent("express"))
			}
		}
	}
}

// Load admits one batch into the docked truck. Each package is admitted only
// if it fits the truck's remaining weight and volume; the rest of the batch
// still gets its turn. With no truck docked the batch is dropped and Load
// returns NOT_DOCKED.
func (e *Express) Load(ctx context.Context) (res ExpressResult, err error) {
	_, span := e.tracer.StartExpressSpan(ctx)
	defer func() { e.tracer.EndExpressSpan(span, res.Requested, res.Admitted, err) }()

	cfg := e.line.cfg
	err = e.line.locked(func() error {
		if e.line.shutdown.Load() {
			return errors.New(errors.ErrCodeCanceled, "shutting down")
		}
		d := &e.line.docked
		if !d.docked {
			return errors.NotDocked("no truck at dock")
		}

		res.Truck = d.truck
		res.Requested = e.gen.IntBetween(cfg.Express.MinBatch, cfg.Express.MaxBatch)
		for i := 0; i < res.Requested; i++ {
			pkg := e.gen.Random()
			if d.load+pkg.Weight > cfg.TruckCapacity || d.volume+pkg.Volume > cfg.TruckVolume {
				continue
			}
			d.load += pkg.Weight
			d.volume += pkg.Volume
			d.items++
			res.Admitted++
			res.Weight += pkg.Weight
		}
		e.line.counters.express += res.Admitted
		e.line.counters.expressWeight += res.Weight
		res.Load, res.Volume = d.load, d.volume
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotDocked) {
			e.log.Info("no truck at dock, express load dropped")
		}
		return res, err
	}

	e.log.ExpressBatch(res.Requested, res.Admitted, res.Load)
	e.journal.LogEvent(telemetry.EventExpressBatch, map[string]interface{}{
		"truck":     res.Truck,
		"requested": res.Requested,
		"admitted":  res.Admitted,
		"weight_kg": res.Weight,
		"load_kg":   res.Load,
	})
	return res, nil
}
