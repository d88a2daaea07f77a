/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with context via fmt.Errorf("...: %w", err).

ERROR CATEGORIES:
  1. Validation errors - Rejected before any write (cadence, interval, count)
  2. Context errors - Owner has no ledger context
  3. Store errors - Uniqueness violations (occurrences, owner ids) and missing records

BENIGN ERRORS:
  ErrDuplicateOccurrence from the materializer's insert path means another
  caller already produced that occurrence. It is swallowed there and only
  surfaced for manual (user-driven) occurrence writes.

  ErrAccountNotFound is never fatal: the balance updater creates the
  account on demand.

SEE ALSO:
  - store.go: Contracts that return these errors
  - api/handlers.go: HTTP status mapping
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
	// ErrInvalidCadence is returned for an unrecognized recurrence cadence.
	ErrInvalidCadence = errors.New("invalid cadence")

	// ErrInvalidInterval is returned when a recurrence interval is not a positive integer.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrInvalidCount is returned when a recurrence count is present but not positive.
	ErrInvalidCount = errors.New("invalid count")

	// ErrInvalidInput covers every other field-level validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOwnerContextMissing is returned when no ledger context exists for the owner.
	ErrOwnerContextMissing = errors.New("owner context missing")

	// ErrOwnerExists is returned when a ledger is opened for an owner id already in use.
	ErrOwnerExists = errors.New("owner already exists")

	// ErrDuplicateOccurrence is returned by stores when the
	// (owner, payee, date, provenance) uniqueness constraint rejects an insert.
	ErrDuplicateOccurrence = errors.New("duplicate occurrence")

	// ErrAccountNotFound is returned by stores when no account of a kind exists.
	ErrAccountNotFound = errors.New("account not found")

	ErrRuleNotFound        = errors.New("recurrence rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOccurrenceNotFound  = errors.New("occurrence not found")
	ErrDebtNotFound        = errors.New("debt not found")
	ErrGoalNotFound        = errors.New("goal not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // one of the validation sentinels
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// DuplicateOccurrenceError describes which upcoming charge already exists.
type DuplicateOccurrenceError struct {
	OwnerID OwnerID
	Payee   string
	Date    Date
	RuleID  RuleID
}

func (e *DuplicateOccurrenceError) Error() string {
	return fmt.Sprintf("an upcoming charge for %q on %s already exists", e.Payee, e.Date)
}

func (e *DuplicateOccurrenceError) Unwrap() error {
	return ErrDuplicateOccurrence
}

// NewDuplicateOccurrenceError builds the conflict error for an occurrence.
func NewDuplicateOccurrenceError(o Occurrence) error {
	return &DuplicateOccurrenceError{OwnerID: o.OwnerID, Payee: o.Payee, Date: o.Date, RuleID: o.RuleID}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCadence) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOwnerContextMissing) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrOccurrenceNotFound) ||
		errors.Is(err, ErrDebtNotFound) ||
		errors.Is(err, ErrGoalNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateOccurrence) ||
		errors.Is(err, ErrOwnerExists)
}
