/*
ledger.go - Validated point balance operations

PURPOSE:
  The Ledger is the ONLY way a user's point balance changes. Every credit
  and debit is validated, applied to the persisted balance, and recorded
  as an append-only LedgerEntry in the same store scope.

CRITICAL INVARIANTS:
  1. Balance never goes negative: a debit that would is rejected with the
     balance untouched
  2. Amounts are positive whole numbers of points
  3. Every change appends exactly one entry; entries are never edited
  4. Same idempotency key = same entry (no double credit on retry)

COMMIT RESPONSIBILITY:
  Ledger writes through whatever Store it is handed. Committing is the
  caller's transaction boundary, which is what lets a debit and its audit
  notification persist atomically (see purchase.go).
*/
package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Ledger applies validated credit and debit operations to user balances.
type Ledger struct {
	Clock Clock
}

// NewLedger creates a Ledger. A nil clock falls back to SystemClock.
func NewLedger(clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{Clock: clock}
}

// Credit adds amount to the user's balance and appends a credit entry.
// Returns the new balance.
//
// Fails with ErrInvalidAmount if amount is not a positive whole number,
// and with ErrDuplicateEntry if the idempotency key was already used.
// On any failure the balance is unchanged.
func (l *Ledger) Credit(ctx context.Context, s Store, user *User, amount Amount, reason, idempotencyKey string) (Amount, error) {
	if err := l.checkAmount(ctx, s, amount, idempotencyKey); err != nil {
		return user.Points, err
	}

	user.Points = user.Points.Add(amount)
	if err := s.SaveUser(ctx, user); err != nil {
		return user.Points, fmt.Errorf("credit %v to %s: %w", amount, user.ID, err)
	}

	entry := LedgerEntry{
		ID:             EntryID(uuid.NewString()),
		UserID:         user.ID,
		Delta:          amount,
		Type:           EntryCredit,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      l.Clock.Now().UTC(),
	}
	if err := s.AppendEntry(ctx, entry); err != nil {
		return user.Points, err
	}

	return user.Points, nil
}

// Debit subtracts amount from the user's balance and appends a debit entry.
// Returns the new balance.
//
// Fails with ErrInvalidAmount if amount is not a positive whole number,
// and with InsufficientBalanceError if the balance would go negative.
// On any failure the balance is unchanged (no partial debit).
func (l *Ledger) Debit(ctx context.Context, s Store, user *User, amount Amount, reason, idempotencyKey string) (Amount, error) {
	if err := l.checkAmount(ctx, s, amount, idempotencyKey); err != nil {
		return user.Points, err
	}

	if user.Points.LessThan(amount) {
		return user.Points, &InsufficientBalanceError{
			UserID:    user.ID,
			Available: user.Points,
			Requested: amount,
			Shortfall: amount.Sub(user.Points),
		}
	}

	user.Points = user.Points.Sub(amount)
	if err := s.SaveUser(ctx, user); err != nil {
		return user.Points, fmt.Errorf("debit %v from %s: %w", amount, user.ID, err)
	}

	entry := LedgerEntry{
		ID:             EntryID(uuid.NewString()),
		UserID:         user.ID,
		Delta:          amount.Neg(),
		Type:           EntryDebit,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      l.Clock.Now().UTC(),
	}
	if err := s.AppendEntry(ctx, entry); err != nil {
		return user.Points, err
	}

	return user.Points, nil
}

// checkAmount validates the amount and, when a key is supplied, rejects
// already-seen idempotency keys before any balance mutation. The unique
// index on the entry table backs this check inside the transaction.
func (l *Ledger) checkAmount(ctx context.Context, s Store, amount Amount, idempotencyKey string) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return &InvalidAmountError{Amount: amount}
	}
	if idempotencyKey != "" {
		exists, err := s.EntryExists(ctx, idempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEntry
		}
	}
	return nil
}
