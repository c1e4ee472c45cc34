package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/sortline/bus"
)

// Monitor watches a line's heartbeats.
type Monitor struct {
	sub     bus.Subscription
	timeout time.Duration
	out     chan *Heartbeat

	mu       sync.RWMutex
	last     *Heartbeat
	received time.Time
	quiet    bool
	onQuiet  []func(last *Heartbeat)
}

// NewMonitor subscribes to Subject. Call Run to start receiving.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 16
	}

	sub, err := cfg.Bus.Subscribe(Subject)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		sub:     sub,
		timeout: timeout,
		out:     make(chan *Heartbeat, buffer),
	}, nil
}

// Run receives heartbeats until ctx ends or the subscription closes, then
// closes the Heartbeats channel. A line silent for longer than the timeout
// fires the OnQuiet callbacks once until it is heard from again.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	check := time.NewTicker(m.timeout / 2)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-m.sub.Messages():
			if !ok {
				return nil
			}
			hb, err := Unmarshal(msg.Data)
			if err != nil {
				continue
			}
			m.receive(hb)
		case <-check.C:
			m.checkQuiet()
		}
	}
}

func (m *Monitor) receive(hb *Heartbeat) {
	m.mu.Lock()
	m.last = hb
	m.received = time.Now()
	m.quiet = false
	m.mu.Unlock()

	select {
	case m.out <- hb:
	default:
		// Reader too slow, drop
	}
}

func (m *Monitor) checkQuiet() {
	m.mu.Lock()
	if m.quiet || m.last == nil || time.Since(m.received) <= m.timeout {
		m.mu.Unlock()
		return
	}
	m.quiet = true
	last := m.last
	callbacks := make([]func(*Heartbeat), len(m.onQuiet))
	copy(callbacks, m.onQuiet)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(last)
	}
}

// Heartbeats returns received heartbeats. It is closed when Run returns.
func (m *Monitor) Heartbeats() <-chan *Heartbeat {
	return m.out
}

// Last returns the most recent heartbeat, or nil.
func (m *Monitor) Last() *Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Alive reports whether a heartbeat arrived within the timeout.
func (m *Monitor) Alive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last != nil && time.Since(m.received) <= m.timeout
}

// OnQuiet registers a callback for a line that stopped sending heartbeats.
// It receives the last heartbeat heard.
func (m *Monitor) OnQuiet(cb func(last *Heartbeat)) {
	m.mu.Lock()
	m.onQuiet = append(m.onQuiet, cb)
	m.mu.Unlock()
}

// Stop ends the subscription; Run returns shortly after.
func (m *Monitor) Stop() error {
	return m.sub.Unsubscribe()
}
