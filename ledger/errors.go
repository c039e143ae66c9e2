/*
errors.go - Error taxonomy for the ledger engine

ERROR CATEGORIES:
  1. Validation - bad input, rejected before any write
  2. Conflict   - numbering collision or duplicate obligation race; retried
  3. Invariant  - stock or balance out of step with its log; never expected
  4. Not found  - referenced product, party or document is missing

USAGE:
  Callers classify with errors.Is / errors.As:

    var verr *ledger.ValidationError
    if errors.As(err, &verr) {
        // 400 with verr.Field
    }
    if ledger.IsRetryable(err) {
        // transient, safe to resubmit
    }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is wrapped by every *ConflictError.
	ErrConflict = errors.New("concurrent conflict")

	// ErrInvariantViolation is wrapped by every *InvariantViolation.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrNotFound is returned by stores when a row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateNumber is returned by stores when a document number is
	// already registered.
	ErrDuplicateNumber = errors.New("document number already issued")

	// ErrDuplicateObligation is returned by stores when a pending collection
	// already exists for the same party, type and reason.
	ErrDuplicateObligation = errors.New("pending collection already exists")

	// ErrStaleStatus is returned by stores when a compare-and-set status update
	// finds a different current status.
	ErrStaleStatus = errors.New("status changed concurrently")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError is a transient failure after the retry budget ran out.
type ConflictError struct {
	Resource string
	Key      string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("conflict on %s %q after %d attempts: %v", e.Resource, e.Key, e.Attempts, e.Err)
	}
	return fmt.Sprintf("conflict on %s %q: %v", e.Resource, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

// InvariantViolation reports a cached value that disagrees with its log.
type InvariantViolation struct {
	Subject  string // e.g. "product:p-1" or "customer:c-1"
	Detail   string
	Expected string
	Actual   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s (expected %s, got %s)",
		e.Subject, e.Detail, e.Expected, e.Actual)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if resubmitting the same operation might succeed.
// The dispatcher re-runs a unit of work on exactly these errors.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateNumber) ||
		errors.Is(err, ErrDuplicateObligation) ||
		errors.Is(err, ErrStaleStatus)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
