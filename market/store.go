/*
store.go - Persistence interface for the marketplace core

PURPOSE:
  Defines the interface between the core and the database. The core never
  talks to a driver directly; PurchaseTransaction and BulkGrantJob define
  their own transaction boundaries through TxStore.WithTx.

KEY INTERFACES:
  Store:   Entity reads/writes plus append-only notification and ledger
           entry persistence
  TxStore: Store with scoped transactions (rollback on error return)
  Clock:   Injectable time source for deterministic tests

APPEND-ONLY CONTRACT:
  Notifications and ledger entries have no Update or Delete operations.
  The only mutation the core performs is SaveUser for the points balance,
  and that is guarded by an optimistic version check.

IMPLEMENTATIONS:
  - store/sqlite:        Production SQLite store
  - market/store (memory): In-memory store for tests and dev
*/
package market

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence for the core's entities.
//
// Lookup methods return (nil, nil) when the entity does not exist; the
// core maps that to ErrUserNotFound / ErrProductNotFound.
type Store interface {
	// GetUser returns the user or (nil, nil) if absent.
	GetUser(ctx context.Context, id UserID) (*User, error)

	// SaveUser inserts or updates a user. On update the stored version must
	// match u.Version or ErrConcurrencyConflict is returned; on success the
	// version is bumped. User.Points must only reach here through Ledger.
	SaveUser(ctx context.Context, u *User) error

	// ListUsers returns all users ordered by last name, first name.
	ListUsers(ctx context.Context) ([]User, error)

	// ListActiveUsers returns the snapshot of users with Active == true.
	ListActiveUsers(ctx context.Context) ([]User, error)

	// GetProduct returns the product or (nil, nil) if absent.
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// SaveProduct inserts or updates a product.
	SaveProduct(ctx context.Context, p *Product) error

	// DeleteProduct removes a product. Products are external entities;
	// notifications documenting them are never deleted.
	DeleteProduct(ctx context.Context, id ProductID) error

	// ListProducts returns all products ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)

	// AppendNotification persists a notification. Append-only.
	AppendNotification(ctx context.Context, n Notification) error

	// ListNotifications returns up to limit notifications, newest first,
	// ties on CreatedAt broken by id descending.
	ListNotifications(ctx context.Context, limit int) ([]Notification, error)

	// AppendEntry persists a ledger entry. Returns ErrDuplicateEntry if the
	// idempotency key is already present. Append-only.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// EntryExists checks whether an idempotency key is already present.
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)

	// EntriesForUser returns a user's ledger entries, newest first.
	EntriesForUser(ctx context.Context, id UserID) ([]LedgerEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write made through the passed Store is
	// rolled back. If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies the current time. Injectable for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
