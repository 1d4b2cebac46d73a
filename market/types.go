/*
Package market provides the points-ledger and notification-audit core
of the marketplace.

PURPOSE:
  Administrators manage products and users; users spend accumulated points
  to buy products; every state-changing action appends an audit
  notification; a background job grants points to active users in bulk.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A points quantity backed by decimal.Decimal, validated to be
    a whole number everywhere it enters the ledger
  - User/Product: The entities the core reads and (for User.Points) mutates
  - Notification: An immutable audit record with a pre-rendered label
  - LedgerEntry: One explicit, validated balance change

CRITICAL INVARIANTS:
  1. User.Points is never negative and is mutated only through Ledger
  2. Every balance change appends exactly one LedgerEntry
  3. Notifications are immutable once written; the core never deletes them
  4. A reused idempotency key never credits or debits twice

SEE ALSO:
  - ledger.go: Credit/Debit operations
  - audit.go: Notification append and listing
  - purchase.go: The atomic debit-and-log workflow
  - grant.go: Bulk point grants
*/
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Points quantity
// =============================================================================

// Amount is a quantity of points. Balances and prices are whole numbers;
// decimal backing avoids float drift when amounts are summed or compared.
type Amount struct {
	Value decimal.Decimal
}

// NewAmount creates an Amount from a whole number of points.
func NewAmount(points int64) Amount {
	return Amount{Value: decimal.NewFromInt(points)}
}

// ParseAmount parses a decimal string into an Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount        { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) IsInteger() bool            { return a.Value.IsInteger() }
func (a Amount) LessThan(b Amount) bool     { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool  { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool        { return a.Value.Equal(b.Value) }
func (a Amount) Int64() int64               { return a.Value.IntPart() }
func (a Amount) String() string             { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ProductID string
type NotificationID string
type EntryID string

// Role is an external capability label. The core trusts a pre-validated
// actor handed to it and only compares roles; it performs no authentication.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// =============================================================================
// ENTITIES
// =============================================================================

// User is the holder of a points balance. Points is mutated only through
// Ledger operations; Version backs the optimistic per-user write lock.
type User struct {
	ID        UserID
	FirstName string
	LastName  string
	Email     string
	Role      Role
	Active    bool
	Points    Amount
	Version   int64
	CreatedAt time.Time
}

// FullName returns "First Last" for audit labels.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Product is read-only from the core's perspective: its price is consumed
// by purchases, never mutated by them.
type Product struct {
	ID        ProductID
	Name      string
	Price     Amount
	CreatedBy UserID
	CreatedAt time.Time
}

// Notification is an audit-log entry: a pre-rendered, human-readable
// description of a state-changing event, tied to the user who is its
// subject or actor. Immutable after creation; UpdatedAt is only set if an
// entry is ever edited, which no current flow does.
type Notification struct {
	ID        NotificationID
	UserID    UserID
	Label     string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// =============================================================================
// LEDGER ENTRY - One explicit balance change
// =============================================================================

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// LedgerEntry records a single validated balance change. Entries are
// append-only; the IdempotencyKey, when set, is unique across the ledger
// and makes retried writes (bulk grant re-runs) no-ops.
type LedgerEntry struct {
	ID             EntryID
	UserID         UserID
	Delta          Amount
	Type           EntryType
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// METRICS RECORDER - Optional observability hook
// =============================================================================

// Recorder receives business events for metrics. Implementations must be
// safe for concurrent use. A nil Recorder disables recording.
type Recorder interface {
	RecordPurchase(points int64)
	RecordGrantRun(credited int, points int64)
}
