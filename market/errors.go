/*
errors.go - Centralized error types for the marketplace core

PURPOSE:
  All core error types in one place. Callers match with errors.Is/As;
  the HTTP layer translates them into status codes.

ERROR CATEGORIES:
  1. Validation errors - bad amounts, empty labels
  2. Business rule violations - insufficient balance, inactive account
  3. Store errors - missing entities, optimistic-lock conflicts,
     idempotency-key reuse
*/
package market

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a credit or debit amount is zero,
	// negative, or not a whole number of points.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when a debit exceeds the user's
	// balance. The balance is left unchanged.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountInactive is returned when a deactivated user attempts a
	// purchase. No balance or audit change occurs.
	ErrAccountInactive = errors.New("account inactive")

	// ErrEmptyLabel is returned when an audit label is empty after trimming.
	ErrEmptyLabel = errors.New("empty audit label")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrProductNotFound is returned when a referenced product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicateEntry is returned when a ledger entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateEntry = errors.New("duplicate idempotency key")

	// ErrConcurrencyConflict is returned when optimistic locking detects a
	// concurrent write to the same user.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %v, requested %v, shortfall %v",
		e.UserID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidAmountError provides the rejected amount.
type InvalidAmountError struct {
	Amount Amount
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %v: must be a positive whole number of points", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller input
// or a business rule the caller violated.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrEmptyLabel) ||
		errors.Is(err, ErrDuplicateEntry)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
