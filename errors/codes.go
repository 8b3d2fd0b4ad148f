package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: provider timeouts, temporarily unavailable backends.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, unknown ids, inconsistent standards.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Provider call exceeded its deadline
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Backend or component temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Transport failure reaching a backend
	ErrCodeProvider    ErrorCode = "PROVIDER"    // Normalized backend failure

	// Permanent errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"          // Unknown agent or standard id
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"      // Malformed or missing input
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"     // Duplicate agent or standard id
	ErrCodePrecondition      ErrorCode = "PRECONDITION"       // Illegal state transition
	ErrCodeUnsupported       ErrorCode = "UNSUPPORTED"        // Operation not offered by a backend
	ErrCodeCanceled          ErrorCode = "CANCELED"           // Caller canceled the operation
	ErrCodeDependency        ErrorCode = "DEPENDENCY"         // Declared dependency missing or inactive
	ErrCodeConsistency       ErrorCode = "CONSISTENCY"        // Standards mutation violates integrity
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE" // Backend payload could not be interpreted

	// Resource errors
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // Backend rate limit exceeded
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // Billing or quota exhausted

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic

	// Agent-specific errors
	ErrCodeAgentOffline   ErrorCode = "AGENT_OFFLINE"   // Agent is not in a state that accepts work
	ErrCodeAnalysisFailed ErrorCode = "ANALYSIS_FAILED" // Analysis failed after it started
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr, ErrCodeProvider:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodeAlreadyExists, ErrCodePrecondition,
		ErrCodeUnsupported, ErrCodeCanceled, ErrCodeDependency, ErrCodeConsistency,
		ErrCodeMalformedResponse:
		return CategoryPermanent

	case ErrCodeRateLimit, ErrCodeQuotaExceeded:
		return CategoryResource

	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	// An offline agent may come back; a failed analysis carries its cause's category when wrapped.
	case ErrCodeAgentOffline:
		return CategoryTransient
	case ErrCodeAnalysisFailed:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}
