package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already structured, the wrapper keeps its code and metadata.
// Otherwise context errors map to TIMEOUT/CANCELED and anything else to INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	if se, ok := asError(err); ok {
		wrapped := &Error{
			code:      se.code,
			category:  se.category,
			message:   message,
			cause:     err,
			metadata:  se.Metadata(),
			retryable: se.retryable,
			timestamp: se.timestamp,
			agentID:   se.agentID,
			operation: se.operation,
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

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

func asError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsStructured extracts the outermost structured error from an error chain.
// Returns nil if none is found.
func AsStructured(err error) StructuredError {
	if se, ok := asError(err); ok {
		return se
	}
	return nil
}

// Is checks if the outermost structured error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if se, ok := asError(err); ok {
		return se.code == code
	}
	return false
}

// HasCode checks if any structured error anywhere in the chain has the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if se, ok := err.(*Error); ok && se.code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	if se, ok := asError(err); ok {
		return se.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	if se, ok := asError(err); ok {
		return se.code
	}
	return ""
}

// GetMetadata extracts metadata from an error.
// Returns nil if err is not structured.
func GetMetadata(err error) map[string]string {
	if se, ok := asError(err); ok {
		return se.Metadata()
	}
	return nil
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
