/*
errors.go - Centralized error types for the progression engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - award/spend rule violations
  2. Catalog errors - malformed achievement definitions
  3. Store errors - persistence-level failures

USAGE:
  if errors.Is(err, progression.ErrInsufficientFunds) {
      // report to the user, nothing was charged
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - achievements.go: Uses UnknownConditionError for skip-and-log
*/
package progression

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientFunds is returned when a spend exceeds the coin balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateSourceKey is returned by stores when inserting a ledger
	// entry whose (user, currency, sourceType, sourceID) tuple already
	// exists. The ledger converts it into AlreadyAwarded, never an error
	// surfaced to callers.
	ErrDuplicateSourceKey = errors.New("duplicate source key")

	// ErrConcurrentModification is returned when lock contention or a
	// version conflict is detected. Retries are safe: idempotency keys make
	// replays no-ops.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnknownCondition is returned for malformed or unrecognized
	// achievement conditions. The evaluator skips the offending definition.
	ErrUnknownCondition = errors.New("unknown achievement condition")

	// ErrInvalidAmount is returned for non-positive award or spend amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCurrency is returned for values outside the closed Currency set.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrSkillIDRequired is returned when awarding skill stars without a skill.
	ErrSkillIDRequired = errors.New("skill id required for skill star awards")

	// ErrDefinitionNotFound is returned when a referenced catalog entry is missing.
	ErrDefinitionNotFound = errors.New("definition not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a coin shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// UnknownConditionError identifies a malformed achievement definition.
type UnknownConditionError struct {
	AchievementID string
	Kind          string
	Reason        string
}

func (e *UnknownConditionError) Error() string {
	if e.AchievementID == "" {
		return fmt.Sprintf("unknown condition %q: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("achievement %s: unknown condition %q: %s", e.AchievementID, e.Kind, e.Reason)
}

func (e *UnknownConditionError) Unwrap() error {
	return ErrUnknownCondition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrSkillIDRequired) ||
		errors.Is(err, ErrUnknownCondition)
}
