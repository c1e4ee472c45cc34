package warehouse

import (
	"context"

	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/parcel"
	"github.com/vinayprograms/sortline/telemetry"
)

// Placement is the outcome of one attempt to put a package on the belt.
type Placement int

const (
	Placed   Placement = iota
	Rejected           // over the belt weight limit; discarded
	Halted             // shutdown observed; nothing pushed
)

// Producer manufactures packages of one category and pushes them onto the
// belt.
type Producer struct {
	line     *Line
	category parcel.Category
	gen      *parcel.Generator
	log      *logging.Logger
	journal  telemetry.Exporter
}

// NewProducer creates a producer for category.
func NewProducer(line *Line, category parcel.Category, gen *parcel.Generator, log *logging.Logger, journal telemetry.Exporter) *Producer {
	return &Producer{
		line:     line,
		category: category,
		gen:      gen,
		log:      log.WithComponent("producer-" + category.String()),
		journal:  journal,
	}
}

// Run places packages until shutdown. A rejected package is discarded and a
// new one is made after the weight backoff.
func (p *Producer) Run(ctx context.Context) error {
	timing := p.line.cfg.Timing
	for {
		if p.line.ShuttingDown() || ctx.Err() != nil {
			return nil
		}

		outcome, err := p.Place(ctx, p.gen.Make(p.category))
		switch {
		case errors.IsCanceled(err) || errors.Is(err, errors.ErrCodeTimeout):
			return nil
		case err != nil:
			p.log.Error("producer stopped", logging.Fields{"error": err.Error()})
			return errors.Wrap(err, "producer "+p.category.String(), errors.WithComponent(p.log.Component()))
		case outcome == Halted:
			return nil
		}

		delay := timing.ProducerInterval.Duration
		if outcome == Rejected {
			delay = timing.WeightBackoff.Duration
		}
		if !pause(ctx, delay) {
			return nil
		}
	}
}

// Place reserves a belt slot and pushes pkg if the belt weight limit allows.
// The slot reservation is given back on every path that does not push.
func (p *Producer) Place(ctx context.Context, pkg parcel.Package) (outcome Placement, err error) {
	if err := p.line.acquireEmpty(ctx); err != nil {
		return Halted, err
	}

	reserved := true
	defer func() {
		if reserved {
			if rerr := p.line.releaseEmpty(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	var count int
	var beltWeight float64
	err = p.line.locked(func() error {
		// Shutdown may have been set while we waited for the slot.
		if p.line.shutdown.Load() {
			outcome = Halted
			return nil
		}
		b := p.line.belt
		if !b.Fits(pkg.Weight, p.line.cfg.MaxBeltWeight) {
			outcome = Rejected
			beltWeight = b.Weight()
			return nil
		}
		if err := b.Push(pkg); err != nil {
			return errors.Assertion("belt full with an EMPTY slot reserved", errors.WithCause(err))
		}
		p.line.counters.pushed++
		p.line.counters.pushedWeight += pkg.Weight
		count, beltWeight = b.Count(), b.Weight()
		outcome = Placed
		return nil
	})
	if err != nil {
		return Halted, err
	}

	switch outcome {
	case Rejected:
		p.log.PackageRejected(pkg.Category.String(), pkg.Weight, beltWeight, p.line.cfg.MaxBeltWeight)
		return Rejected, nil
	case Halted:
		return Halted, nil
	}

	// The slot now holds a package; it is FULL's to hand out.
	reserved = false
	if err := p.line.releaseFull(); err != nil {
		return Placed, err
	}

	p.log.PackagePlaced(pkg.Category.String(), pkg.Weight, count, p.line.cfg.BeltCapacity, beltWeight)
	p.journal.LogEvent(telemetry.EventPackagePlaced, map[string]interface{}{
		"id":          pkg.ID,
		"category":    pkg.Category.String(),
		"weight_kg":   pkg.Weight,
		"belt_count":  count,
		"belt_weight": beltWeight,
	})
	return Placed, nil
}
