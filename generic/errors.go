/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so the HTTP layer can
  translate them to status codes without knowing about orders or parcels.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, insufficient funds, bad transitions
  2. Configuration errors - Missing status groups or strategies (bootstrap mismatch)
  3. Protected deletion - Deletes that would break a business invariant
  4. Not found - Missing entities

USAGE:
  if errors.Is(err, generic.ErrValidation) {
      // 400
  }
  var trErr *generic.TransitionError
  if errors.As(err, &trErr) {
      fmt.Println(trErr.From, trErr.To)
  }

SEE ALSO:
  - ledger.go: InsufficientFundsError, ValidationError
  - transition.go: TransitionError
  - api/handlers.go: HTTP translation
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the umbrella for every input or business-rule violation.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when an expense exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTransitionNotAllowed is returned when the status graph rejects a change.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")

	// ErrConfiguration marks a bootstrap/config mismatch. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrStrategyNotFound is returned when no strategy is mapped to a status.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrStatusGroupNotFound is returned when a status group is not seeded.
	ErrStatusGroupNotFound = errors.New("status group not found")

	// ErrTransactionTypeMissing is returned when a billing status has no ledger type.
	ErrTransactionTypeMissing = errors.New("transaction type not configured")

	// ErrProtectedDeletion is returned instead of a delete that would break an invariant.
	ErrProtectedDeletion = errors.New("deletion is not allowed")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a single rejected field or rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError carries both the current and the required amounts.
type InsufficientFundsError struct {
	BalanceID     BalanceID
	AvailableEuro decimal.Decimal
	AvailableRub  decimal.Decimal
	RequiredEuro  decimal.Decimal
	RequiredRub   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s EUR / %s RUB, required %s EUR / %s RUB",
		e.AvailableEuro.StringFixed(MoneyPlaces), e.AvailableRub.StringFixed(MoneyPlaces),
		e.RequiredEuro.StringFixed(MoneyPlaces), e.RequiredRub.StringFixed(MoneyPlaces))
}

func (e *InsufficientFundsError) Unwrap() []error {
	return []error{ErrInsufficientFunds, ErrValidation}
}

// TransitionError is returned when old.code -> new.code is not in the graph.
type TransitionError struct {
	Group GroupCode
	From  StatusCode
	To    StatusCode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %q -> %q is not allowed in group %q", e.From, e.To, e.Group)
}

func (e *TransitionError) Unwrap() []error {
	return []error{ErrTransitionNotAllowed, ErrValidation}
}

// ConfigurationError names the missing piece of configuration.
type ConfigurationError struct {
	Kind error // ErrStrategyNotFound, ErrStatusGroupNotFound, ...
	Key  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Key)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrConfiguration}
	}
	return []error{e.Kind, ErrConfiguration}
}

// ProtectedDeletionError explains why a delete was refused.
type ProtectedDeletionError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ProtectedDeletionError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ProtectedDeletionError) Unwrap() error { return ErrProtectedDeletion }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicate)
}

// IsConflict returns true for errors that contradict the current entity state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrProtectedDeletion) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration returns true for bootstrap/configuration mismatches.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
