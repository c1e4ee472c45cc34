package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// A wrapped *Error keeps its code; context errors map to TIMEOUT/CANCELED;
// anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var lineErr *Error
	if errors.As(err, &lineErr) {
		wrapped := &Error{
			code:      lineErr.code,
			category:  lineErr.category,
			message:   message,
			cause:     err,
			metadata:  lineErr.Metadata(),
			timestamp: lineErr.timestamp,
			component: lineErr.component,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// AsLineError extracts a LineError from an error chain.
// Returns nil if none is found.
func AsLineError(err error) LineError {
	var lineErr *Error
	if errors.As(err, &lineErr) {
		return lineErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var lineErr *Error
	if errors.As(err, &lineErr) {
		return lineErr.code == code
	}
	return false
}

// IsCategory checks if the outermost line error has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var lineErr *Error
	if errors.As(err, &lineErr) {
		return lineErr.category == category
	}
	return false
}

// IsFatal checks if the error must end the worker that observed it.
// Plain errors are not fatal.
func IsFatal(err error) bool {
	var lineErr *Error
	if errors.As(err, &lineErr) {
		return lineErr.Fatal()
	}
	return false
}

// IsCanceled reports whether err came from context cancellation, either
// directly or wrapped as CANCELED.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || Is(err, ErrCodeCanceled)
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	var lineErr *Error
	if errors.As(err, &lineErr) {
		return lineErr.code
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
