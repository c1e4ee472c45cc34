package errors

import (
	"fmt"
	"time"
)

// LineError is the interface for structured errors raised on the sorting line.
type LineError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Fatal returns true if the worker that saw this error must stop.
	Fatal() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of LineError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
	component string // worker that raised it, e.g. "truck-2"
}

var _ LineError = (*Error)(nil)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Fatal returns whether the error ends the worker.
func (e *Error) Fatal() bool {
	return e.code.IsFatal()
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error was created.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Component returns the worker that raised the error, if set.
func (e *Error) Component() string {
	return e.component
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithComponent records which worker raised the error.
func WithComponent(name string) Option {
	return func(e *Error) {
		e.component = name
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// InvalidConfig creates a startup validation error.
func InvalidConfig(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidConfig, message, opts...)
}

// SyncFailure creates a fatal synchronization error for the named primitive.
func SyncFailure(primitive string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("primitive", primitive), WithCause(cause)}, opts...)
	return New(ErrCodeSyncFailure, "semaphore "+primitive, opts...)
}

// Assertion creates an invariant violation error.
func Assertion(message string, opts ...Option) *Error {
	return New(ErrCodeAssertion, message, opts...)
}

// UnknownCommand creates an error for unrecognized operator input.
func UnknownCommand(input string) *Error {
	return New(ErrCodeUnknownCommand, fmt.Sprintf("unrecognized command %q", input),
		WithMetadata("input", input))
}

// NotDocked creates the report returned when a command needs a docked truck.
func NotDocked(message string) *Error {
	return New(ErrCodeNotDocked, message)
}

// Bus creates a notification transport error.
func Bus(message string, cause error) *Error {
	return New(ErrCodeBus, message, WithCause(cause))
}
