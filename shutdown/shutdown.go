// Package shutdown runs the sorting line's teardown in ordered phases.
//
// A simulation registers one step per phase:
//
//	PhaseHalt     raise the sticky shutdown flag and cancel every wait
//	PhaseDrain    wait until every producer, truck and the express worker exit
//	PhaseRelease  close the notification bus, event journal and tracer provider
//
// Steps in the same phase run concurrently. Shutdown runs once; later and
// concurrent callers block until the first run finishes and get its result.
package shutdown

import (
	"context"
	"errors"
	"time"
)

// Teardown phases. Lower phases run first.
const (
	PhaseHalt    = 10
	PhaseDrain   = 20
	PhaseRelease = 30
)

var (
	// ErrTimeout indicates the context ended before every phase ran.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrStepFailed indicates one or more steps returned an error.
	ErrStepFailed = errors.New("one or more shutdown steps failed")
)

// Handler is implemented by components that take part in teardown.
type Handler interface {
	// OnShutdown is called once. ctx carries the overall shutdown deadline.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// Step is the outcome of one registered handler.
type Step struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Report is the outcome of a complete shutdown.
type Report struct {
	Duration time.Duration
	Steps    []Step
	Err      error
}

// Failed reports whether any step failed or the run timed out.
func (r *Report) Failed() bool {
	return r.Err != nil
}

// FailedSteps returns the names of failed steps in run order.
func (r *Report) FailedSteps() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds ShutdownWithTimeout(0) and signal-triggered shutdowns.
	// Default: 30 seconds
	Timeout time.Duration

	// ContinueOnError runs later phases even after a step fails.
	// Default: true
	ContinueOnError bool

	// OnProgress is called as each step completes.
	OnProgress func(Step)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	phase   int
	handler Handler
}
