package bus

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBus implements MessageBus with in-process channels.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed atomic.Bool

	replySeq atomic.Uint64
}

type memorySub struct {
	subject string
	ch      chan *Message
	closed  atomic.Bool
	bus     *MemoryBus
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &MemoryBus{
		config: cfg,
		subs:   make(map[string][]*memorySub),
	}
}

// Publish sends a message to all subscribers.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	return b.publish(&Message{Subject: subject, Data: data})
}

func (b *MemoryBus) publish(msg *Message) error {
	if err := ValidateSubject(msg.Subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	// Delivery happens under the read lock so Close/Unsubscribe cannot close
	// a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[msg.Subject] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Buffer full, drop message
		}
	}
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		subject: subject,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}
	b.subs[subject] = append(b.subs[subject], sub)

	return sub, nil
}

// Request publishes data with a private reply subject and waits for the
// first message published to it.
func (b *MemoryBus) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.RLock()
	responders := len(b.subs[subject])
	b.mu.RUnlock()
	if responders == 0 {
		if b.closed.Load() {
			return nil, ErrClosed
		}
		return nil, ErrNoResponders
	}

	reply := "_INBOX." + strconv.FormatUint(b.replySeq.Add(1), 10)
	sub, err := b.Subscribe(reply)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.publish(&Message{Subject: subject, Data: data, Reply: reply}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Close shuts down the bus and closes every subscription channel.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		}
	}
	b.subs = make(map[string][]*memorySub)

	return nil
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	subs := s.bus.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.bus.subs[s.subject]) == 0 {
		delete(s.bus.subs, s.subject)
	}

	close(s.ch)
	return nil
}
