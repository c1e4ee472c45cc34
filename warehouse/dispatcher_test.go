package warehouse

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/errors"
	"github.com/vinayprograms/sortline/telemetry"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    Command
		wantErr bool
	}{
		{"1", CommandDepart, false},
		{" 2\n", CommandExpress, false},
		{"3", CommandShutdown, false},
		{"4", 0, true},
		{"quit", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, errors.ErrCodeUnknownCommand) {
			t.Errorf("ParseCommand(%q): expected UNKNOWN_COMMAND, got %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

type dispatcherFixture struct {
	line       *Line
	bus        *bus.MemoryBus
	dispatcher *Dispatcher
	journal    *recordingJournal
	halts      atomic.Int32
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		line:    NewLine(testConfig()),
		bus:     bus.NewMemoryBus(bus.DefaultConfig()),
		journal: &recordingJournal{},
	}
	t.Cleanup(func() { f.bus.Close() })
	f.dispatcher = NewDispatcher(f.line, f.bus, func() { f.halts.Add(1) }, quietLogger(), f.journal, telemetry.GetTracer())
	return f
}

func TestDepartWithoutTruck(t *testing.T) {
	f := newDispatcherFixture(t)

	report, err := f.dispatcher.Execute(context.Background(), CommandDepart, SourceStdin)
	if !errors.Is(err, errors.ErrCodeNotDocked) {
		t.Fatalf("expected NOT_DOCKED, got %v", err)
	}
	if report != "no truck docked" {
		t.Fatalf("unexpected report %q", report)
	}
	if got := len(f.journal.named(telemetry.EventCommand)); got != 1 {
		t.Fatalf("expected 1 command event, got %d", got)
	}
}

func TestDepartTargetsDockedTruck(t *testing.T) {
	f := newDispatcherFixture(t)

	docked := newTestTruck(f.line, 2)
	other := newTestTruck(f.line, 3)
	dockedSub, _ := f.bus.Subscribe(docked.Subject())
	otherSub, _ := f.bus.Subscribe(other.Subject())
	docked.depart = dockedSub
	if ok, err := docked.Dock(context.Background()); !ok || err != nil {
		t.Fatalf("Dock() = %v, %v", ok, err)
	}

	report, err := f.dispatcher.Execute(context.Background(), CommandDepart, SourceStdin)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(report, "truck 2") {
		t.Fatalf("unexpected report %q", report)
	}

	select {
	case <-dockedSub.Messages():
	case <-time.After(time.Second):
		t.Fatal("docked truck got no departure request")
	}
	select {
	case <-otherSub.Messages():
		t.Fatal("queued truck got a departure request")
	default:
	}
}

func TestExpressCommandPublishesWake(t *testing.T) {
	f := newDispatcherFixture(t)
	wake, _ := f.bus.Subscribe(bus.SubjectExpressWake)

	if _, err := f.dispatcher.Execute(context.Background(), CommandExpress, SourceStdin); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	select {
	case <-wake.Messages():
	case <-time.After(time.Second):
		t.Fatal("no wake published")
	}
}

func TestUnknownInputChangesNothing(t *testing.T) {
	f := newDispatcherFixture(t)
	before := f.line.Snapshot()

	report, err := f.dispatcher.Handle(context.Background(), "9", SourceStdin)
	if !errors.Is(err, errors.ErrCodeUnknownCommand) {
		t.Fatalf("expected UNKNOWN_COMMAND, got %v", err)
	}
	if !strings.Contains(report, "unrecognized") {
		t.Fatalf("unexpected report %q", report)
	}
	if f.halts.Load() != 0 {
		t.Fatal("unknown input triggered shutdown")
	}
	after := f.line.Snapshot()
	if after.Docked != before.Docked || after.BeltCount != before.BeltCount || after.Shutdown {
		t.Fatal("unknown input changed line state")
	}
}

func TestRunReadsCommandsUntilShutdown(t *testing.T) {
	f := newDispatcherFixture(t)
	in := strings.NewReader("2\n\nbogus\n1\n3\n2\n")
	var out bytes.Buffer

	if err := f.dispatcher.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{"express load requested", "unrecognized", "no truck docked", "shutting down"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d reports, got %q", len(want), lines)
	}
	for i := range want {
		if !strings.Contains(lines[i], want[i]) {
			t.Errorf("report %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if f.halts.Load() != 1 {
		t.Fatalf("expected one halt, got %d", f.halts.Load())
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	f := newDispatcherFixture(t)
	var out bytes.Buffer
	if err := f.dispatcher.Run(context.Background(), strings.NewReader("2\n"), &out); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if f.halts.Load() != 0 {
		t.Fatal("EOF must not shut the line down")
	}
}

func TestServeAnswersRemoteCommands(t *testing.T) {
	f := newDispatcherFixture(t)
	control, _ := f.bus.Subscribe(bus.SubjectControl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Serve(ctx, control) }()

	report, err := RemoteCommand(f.bus, "1", time.Second)
	if err != nil {
		t.Fatalf("RemoteCommand() error: %v", err)
	}
	if report != "no truck docked" {
		t.Fatalf("unexpected report %q", report)
	}

	report, err = RemoteCommand(f.bus, "3", time.Second)
	if err != nil || report != "shutting down" {
		t.Fatalf("RemoteCommand(3) = %q, %v", report, err)
	}
	if f.halts.Load() != 1 {
		t.Fatal("expected halt from remote shutdown")
	}

	events := f.journal.named(telemetry.EventCommand)
	if len(events) != 2 || events[0].Data["source"] != SourceBus {
		t.Fatalf("unexpected command events %+v", events)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestRemoteCommandWithoutDispatcher(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	_, err := RemoteCommand(b, "2", 50*time.Millisecond)
	if !errors.Is(err, errors.ErrCodeBus) {
		t.Fatalf("expected BUS error, got %v", err)
	}
}

func TestScanLinesStopsWithPendingLine(t *testing.T) {
	lines := make(chan string)
	stop := make(chan struct{})
	close(stop)

	// Nobody receives on lines: the reader must give up on the pending
	// line instead of blocking.
	done := make(chan error, 1)
	go func() { done <- scanLines(strings.NewReader("3\n2\n"), lines, stop) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("scanLines() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader blocked after stop")
	}
}

func TestScanLinesDeliversUntilEOF(t *testing.T) {
	lines := make(chan string)
	done := make(chan error, 1)
	go func() { done <- scanLines(strings.NewReader("1\n\n2\n"), lines, make(chan struct{})) }()

	var got []string
	for len(got) < 3 {
		select {
		case l := <-lines:
			got = append(got, l)
		case <-time.After(time.Second):
			t.Fatalf("only got %q", got)
		}
	}
	if strings.Join(got, ",") != "1,,2" {
		t.Fatalf("lines = %q", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("scanLines() error: %v", err)
	}
}
