package errors

// ErrorCategory classifies errors by how the line reacts to them.
type ErrorCategory string

// Error categories.
const (
	// CategoryTransient indicates a temporary failure where retry may succeed.
	// Examples: bus publish failure, NATS reconnect in progress.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid launch parameters, unknown operator command.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates broken synchronization or a violated invariant.
	// These end the worker that observed them.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes.
const (
	// Transient errors
	ErrCodeTimeout ErrorCode = "TIMEOUT" // Operation timed out
	ErrCodeBus     ErrorCode = "BUS"     // Notification transport failure

	// Permanent errors
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"  // Launch parameters rejected
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND" // Operator input not recognised
	ErrCodeNotDocked      ErrorCode = "NOT_DOCKED"      // Command needs a docked truck
	ErrCodeCanceled       ErrorCode = "CANCELED"        // Operation was canceled

	// Internal errors
	ErrCodeSyncFailure ErrorCode = "SYNC_FAILURE" // Lock or semaphore misuse
	ErrCodeAssertion   ErrorCode = "ASSERTION"    // Invariant violation
	ErrCodePanic       ErrorCode = "PANIC"        // Recovered from panic
	ErrCodeInternal    ErrorCode = "INTERNAL"     // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeBus:
		return CategoryTransient
	case ErrCodeInvalidConfig, ErrCodeUnknownCommand, ErrCodeNotDocked, ErrCodeCanceled:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

// IsFatal reports whether an error with this code must end the worker.
func (c ErrorCode) IsFatal() bool {
	switch c {
	case ErrCodeSyncFailure, ErrCodeAssertion, ErrCodePanic:
		return true
	default:
		return false
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:        "operation timed out",
	ErrCodeBus:            "notification bus failure",
	ErrCodeInvalidConfig:  "invalid simulation parameters",
	ErrCodeUnknownCommand: "unrecognized command",
	ErrCodeNotDocked:      "no truck docked",
	ErrCodeCanceled:       "operation canceled",
	ErrCodeSyncFailure:    "synchronization primitive failure",
	ErrCodeAssertion:      "invariant violated",
	ErrCodePanic:          "recovered from panic",
	ErrCodeInternal:       "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
