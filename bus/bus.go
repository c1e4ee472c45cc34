// Package bus carries the sorting line's point-to-point notifications:
// truck departure requests, express wake-ups and operator commands.
//
// Two transports implement MessageBus: MemoryBus for a single-process
// simulation (the default) and NATSBus when an operator drives the line
// remotely. Both deliver into buffered channels and never block the
// publisher.
package bus

import (
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrTimeout        = errors.New("request timeout")
	ErrNoResponders   = errors.New("no responders")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Subject layout. Every subject lives under SubjectRoot.
const (
	SubjectRoot = "sortline"

	// SubjectExpressWake wakes the express producer.
	SubjectExpressWake = SubjectRoot + ".express.wake"

	// SubjectControl carries operator command text; replies carry the report.
	SubjectControl = SubjectRoot + ".control"
)

// SubjectDepart returns the subject a truck listens on for force-departure
// requests. identity is the truck's dock registration handle.
func SubjectDepart(identity string) string {
	return SubjectRoot + ".truck." + identity + ".depart"
}

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte

	// Reply is the reply subject for request/reply. Empty for plain publishes.
	Reply string
}

// MessageBus provides pub/sub and request/reply messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	// It never blocks on a slow subscriber.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	Subscribe(subject string) (Subscription, error)

	// Request sends a request and waits for a single reply.
	// Returns ErrTimeout if no reply arrives within timeout.
	Request(subject string, data []byte, timeout time.Duration) (*Message, error)

	// Close shuts down the bus. Open subscriptions see their channel closed.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels. Messages beyond it are dropped.
	// Default: 64
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 64,
	}
}

// ValidateSubject checks if a subject is valid: non-empty, no whitespace,
// no empty tokens.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return ErrInvalidSubject
		}
	}
	return nil
}
