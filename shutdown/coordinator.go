package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Coordinator runs registered handlers phase by phase.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration

	once   sync.Once
	done   chan struct{}
	report *Report

	signals chan os.Signal
}

// NewCoordinator creates a coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Coordinator{
		config:  config,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a handler to a phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: handler})
}

// RegisterFunc adds a function to a phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, HandlerFunc(fn))
}

// Shutdown runs every phase once and returns the run's error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.report = c.run(ctx)
		close(c.done)
	})
	return c.report.Err
}

// ShutdownWithTimeout runs Shutdown bounded by timeout, or by the configured
// timeout when timeout is 0.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals shuts down on SIGINT or SIGTERM. onSignal, if set, is called
// with the signal before teardown starts. The returned function stops
// listening.
func (c *Coordinator) HandleSignals(onSignal func(os.Signal)) (stop func()) {
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-c.signals:
			if onSignal != nil {
				onSignal(sig)
			}
			_ = c.ShutdownWithTimeout(0)
		case <-quit:
		case <-c.done:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(c.signals)
			close(quit)
		})
	}
}

// Trigger delivers a synthetic SIGTERM to the signal handler.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when Shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error, or nil while shutdown has not finished.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.report.Err
	default:
		return nil
	}
}

// Report returns the shutdown report, or nil while shutdown has not finished.
func (c *Coordinator) Report() *Report {
	select {
	case <-c.done:
		return c.report
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Report {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	report := &Report{Steps: make([]Step, 0, len(handlers))}
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			report.Err = ErrTimeout
			break
		}

		steps := c.runPhase(ctx, group)
		report.Steps = append(report.Steps, steps...)

		failed := false
		for _, s := range steps {
			if s.Err != nil {
				failed = true
			}
		}
		if failed && report.Err == nil {
			report.Err = ErrStepFailed
		}
		if failed && !c.config.ContinueOnError {
			break
		}
	}

	report.Duration = time.Since(start)
	return report
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []Step {
	steps := make([]Step, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			steps[idx] = Step{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}
			if c.config.OnProgress != nil {
				c.config.OnProgress(steps[idx])
			}
		}(i, reg)
	}

	wg.Wait()
	return steps
}

// groupByPhase splits phase-sorted handlers into runs of equal phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		groups = append(groups, handlers[i:j])
		i = j
	}
	return groups
}
