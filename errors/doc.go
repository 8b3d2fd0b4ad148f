// Package errors provides the structured error taxonomy shared by every
// compliancekit component. Each failure carries a stable code, a category
// that drives retry decisions, and optional metadata such as the agent id,
// the failing operation, and raw provider detail.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (provider timeouts, outages)
//   - Permanent: Failures where retry will not help (invalid input, unknown ids)
//   - Resource: Rate limits and exhausted quotas
//   - Internal: Unexpected errors indicating bugs
//
// # Usage
//
// Create a new error:
//
//	err := errors.Validation("document content is empty")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "analyzing document", errors.WithAgentID(id))
//
// Check a code anywhere in the outermost structured error:
//
//	if errors.Is(err, errors.ErrCodeAgentOffline) {
//	    // reinitialize or route elsewhere
//	}
//
// Errors marshal to JSON so they can be stored in analysis history or
// returned across process boundaries.
package errors
