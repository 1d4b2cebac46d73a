/*
purchase.go - Atomic purchase workflow

PURPOSE:
  A user spends points to acquire a product, and this must be recorded or
  not happen at all. This is the one multi-step workflow in the core that
  requires atomicity across the ledger and the audit log.

ALGORITHM:
  1. Load user and product (ErrUserNotFound / ErrProductNotFound)
  2. Reject inactive accounts (ErrAccountInactive) - no state change
  3. Reject insufficient balances - no state change
  4. Debit the price and append the purchase notification
  5. Steps 3-4 run inside one TxStore.WithTx: either both persist or
     neither does; no partial state is observable by concurrent readers
*/
package market

import (
	"context"
	"fmt"
)

// Purchase orchestrates the debit-and-log purchase transaction.
type Purchase struct {
	Store   TxStore
	Ledger  *Ledger
	Audit   *AuditLog
	Clock   Clock
	Metrics Recorder
}

// NewPurchase wires a Purchase over the given store and clock.
func NewPurchase(store TxStore, clock Clock) *Purchase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Purchase{
		Store:  store,
		Ledger: NewLedger(clock),
		Audit:  NewAuditLog(clock),
		Clock:  clock,
	}
}

// Buy debits the product's price from the actor's balance and appends the
// purchase notification in the same transaction. Returns the new balance.
//
// The user is reloaded inside the transaction so the balance check and the
// optimistic version on SaveUser serialize concurrent operations on the
// same user.
func (p *Purchase) Buy(ctx context.Context, actorID UserID, productID ProductID) (Amount, error) {
	var (
		newBalance Amount
		spent      int64
	)

	err := p.Store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, actorID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("buy: actor %s: %w", actorID, ErrUserNotFound)
		}

		product, err := s.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("buy: %w", ErrProductNotFound)
		}

		if !user.Active {
			return ErrAccountInactive
		}

		balance, err := p.Ledger.Debit(ctx, s, user, product.Price, "purchase:"+string(product.ID), "")
		if err != nil {
			return err
		}

		now := p.Clock.Now()
		if _, err := p.Audit.Append(ctx, s, user.ID, PurchaseLabel(user, product, now), now); err != nil {
			return err
		}

		newBalance = balance
		spent = product.Price.Int64()
		return nil
	})
	if err != nil {
		return Amount{}, err
	}

	if p.Metrics != nil {
		p.Metrics.RecordPurchase(spent)
	}
	return newBalance, nil
}
