package warehouse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/logging"
	"github.com/vinayprograms/sortline/telemetry"
)

// Command is an operator command.
type Command int

const (
	CommandDepart   Command = 1 // ForceDeparture
	CommandExpress  Command = 2 // TriggerExpress
	CommandShutdown Command = 3
)

func (c Command) String() string {
	switch c {
	case CommandDepart:
		return "depart"
	case CommandExpress:
		return "express"
	case CommandShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ParseCommand maps operator input ("1", "2" or "3") to a Command.
func ParseCommand(input string) (Command, error) {
	switch strings.TrimSpace(input) {
	case "1":
		return CommandDepart, nil
	case "2":
		return CommandExpress, nil
	case "3":
		return CommandShutdown, nil
	}
	return 0, errors.UnknownCommand(strings.TrimSpace(input))
}

// Command sources.
const (
	SourceStdin = "stdin"
	SourceBus   = "bus"
)

// Dispatcher turns operator commands into notifications. It is the only
// writer of control requests.
type Dispatcher struct {
	line    *Line
	bus     bus.MessageBus
	halt    func()
	log     *logging.Logger
	journal telemetry.Exporter
	tracer  *telemetry.Tracer
}

// NewDispatcher creates a dispatcher. halt runs the shutdown command; it
// must not block on the workers.
func NewDispatcher(line *Line, b bus.MessageBus, halt func(), log *logging.Logger, journal telemetry.Exporter, tracer *telemetry.Tracer) *Dispatcher {
	return &Dispatcher{
		line:    line,
		bus:     b,
		halt:    halt,
		log:     log.WithComponent("dispatcher"),
		journal: journal,
		tracer:  tracer,
	}
}

// Execute runs one command and returns the operator-facing report.
// ForceDeparture with no truck docked reports NOT_DOCKED; it changes nothing.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command, source string) (report string, err error) {
	_, span := d.tracer.StartCommandSpan(ctx, cmd.String(), source)
	defer func() {
		d.tracer.EndCommandSpan(span, report, err)
		d.log.Command(cmd.String(), source, report)
		d.journal.LogEvent(telemetry.EventCommand, map[string]interface{}{
			"command": cmd.String(),
			"source":  source,
			"result":  report,
		})
	}()

	switch cmd {
	case CommandDepart:
		return d.forceDeparture()

	case CommandExpress:
		if err := d.bus.Publish(bus.SubjectExpressWake, nil); err != nil {
			return "express wake failed", errors.Bus("publish express wake", err)
		}
		return "express load requested", nil

	case CommandShutdown:
		d.halt()
		return "shutting down", nil
	}
	return "unknown command", errors.UnknownCommand(cmd.String())
}

func (d *Dispatcher) forceDeparture() (string, error) {
	var (
		truck int
		err   error
	)
	lerr := d.line.locked(func() error {
		if !d.line.docked.docked {
			return errors.NotDocked("no truck docked")
		}
		truck = d.line.docked.truck
		err = d.bus.Publish(bus.SubjectDepart(d.line.docked.identity), nil)
		return nil
	})
	if lerr != nil {
		return "no truck docked", lerr
	}
	if err != nil {
		return "departure request failed", errors.Bus("publish departure", err)
	}
	return fmt.Sprintf("departure requested for truck %d", truck), nil
}

// Handle parses and executes one line of operator input.
func (d *Dispatcher) Handle(ctx context.Context, input, source string) (string, error) {
	cmd, err := ParseCommand(input)
	if err != nil {
		d.log.Warn("unrecognized command", logging.Fields{"input": strings.TrimSpace(input), "source": source})
		return fmt.Sprintf("unrecognized command %q (use 1=depart, 2=express, 3=shutdown)", strings.TrimSpace(input)), err
	}
	return d.Execute(ctx, cmd, source)
}

// Run reads commands from r, one per line, writing each report to w. It
// returns when ctx ends, at EOF, or after a shutdown command. Blank lines
// are ignored.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() { readErr <- scanLines(r, lines, done) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case input := <-lines:
			if strings.TrimSpace(input) == "" {
				continue
			}
			report, err := d.Handle(ctx, input, SourceStdin)
			fmt.Fprintln(w, report)
			if errors.IsFatal(err) {
				return err
			}
			if cmd, perr := ParseCommand(input); perr == nil && cmd == CommandShutdown {
				return nil
			}
		}
	}
}

// scanLines sends each line of r on lines until EOF or until stop closes.
// A line read after stop is dropped rather than waited on.
func scanLines(r io.Reader, lines chan<- string, stop <-chan struct{}) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-stop:
			return nil
		}
	}
	return sc.Err()
}

// Serve answers commands published on bus.SubjectControl until ctx ends.
// Each request's payload is the command text; the reply is the report.
func (d *Dispatcher) Serve(ctx context.Context, sub bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			report, err := d.Handle(ctx, string(msg.Data), SourceBus)
			if msg.Reply != "" {
				if perr := d.bus.Publish(msg.Reply, []byte(report)); perr != nil {
					d.log.Warn("reply failed", logging.Fields{"error": perr.Error()})
				}
			}
			if errors.IsFatal(err) {
				return err
			}
		}
	}
}

// RemoteCommand sends one command over b and returns the dispatcher's
// report.
func RemoteCommand(b bus.MessageBus, input string, timeout time.Duration) (string, error) {
	reply, err := b.Request(bus.SubjectControl, []byte(strings.TrimSpace(input)), timeout)
	if err != nil {
		return "", errors.Bus("control request", err)
	}
	return string(reply.Data), nil
}
