package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/sortline/bus"
)

// Sender publishes heartbeats from a Source.
type Sender struct {
	bus      bus.MessageBus
	interval time.Duration
	source   Source

	sent   atomic.Int64
	failed atomic.Int64
}

// NewSender creates a heartbeat sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Sender{
		bus:      cfg.Bus,
		interval: interval,
		source:   cfg.Source,
	}, nil
}

// Run publishes a heartbeat immediately and then once per interval. When
// ctx ends it publishes one last heartbeat and returns nil. It also returns
// once the bus is closed. Other publish failures are counted and skipped.
func (s *Sender) Run(ctx context.Context) error {
	if s.send() {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.send()
			return nil
		case <-ticker.C:
			if s.send() {
				return nil
			}
		}
	}
}

// send publishes one heartbeat and reports whether the bus is closed.
func (s *Sender) send() (closed bool) {
	hb := s.source()
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}
	data, err := hb.Marshal()
	if err != nil {
		s.failed.Add(1)
		return false
	}
	if err := s.bus.Publish(Subject, data); err != nil {
		if errors.Is(err, bus.ErrClosed) {
			return true
		}
		s.failed.Add(1)
		return false
	}
	s.sent.Add(1)
	return false
}

// Sent returns the number of heartbeats published.
func (s *Sender) Sent() int64 {
	return s.sent.Load()
}

// Failed returns the number of heartbeats that could not be published.
func (s *Sender) Failed() int64 {
	return s.failed.Load()
}
