package market_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/market"
	"github.com/warp/pointsmarket/market/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func seedProduct(t *testing.T, s market.Store, id string, price int64) *market.Product {
	t.Helper()
	p := &market.Product{
		ID:        market.ProductID(id),
		Name:      "clavier mécanique",
		Price:     market.NewAmount(price),
		CreatedBy: "admin-1",
		CreatedAt: testClock().Now(),
	}
	require.NoError(t, s.SaveProduct(context.Background(), p))
	return p
}

// notifyFailStore wraps a TxStore so that AppendNotification fails inside
// transactions, simulating a write failure between debit and audit log.
type notifyFailStore struct {
	*store.Memory
}

var errInjected = errors.New("injected notification failure")

func (f *notifyFailStore) WithTx(ctx context.Context, fn func(market.Store) error) error {
	return f.Memory.WithTx(ctx, func(s market.Store) error {
		return fn(&notifyFailView{Store: s})
	})
}

type notifyFailView struct {
	market.Store
}

func (v *notifyFailView) AppendNotification(context.Context, market.Notification) error {
	return errInjected
}

// =============================================================================
// PURCHASE TESTS
// =============================================================================

func TestPurchase_Buy_DebitsAndLogs(t *testing.T) {
	// GIVEN: An active user with 500 points and a product costing 300
	// WHEN: The user buys the product
	// THEN: Balance is 200, exactly one notification and one debit entry exist

	s := store.NewMemory()
	purchase := market.NewPurchase(s, testClock())
	ctx := context.Background()

	user := member("u-1", 500)
	seedUser(t, s, user)
	seedProduct(t, s, "p-1", 300)

	balance, err := purchase.Buy(ctx, user.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance.Int64())

	stored, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.Points.Int64())

	notifications, err := s.ListNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1, "exactly one notification per purchase")
	assert.Equal(t, user.ID, notifications[0].UserID)
	assert.Contains(t, notifications[0].Label, "clavier mécanique")

	entries, err := s.EntriesForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-300), entries[0].Delta.Int64())
}

func TestPurchase_Buy_InsufficientBalance(t *testing.T) {
	// GIVEN: An active user with 100 points and a product costing 300
	// WHEN: The user tries to buy
	// THEN: ErrInsufficientBalance; balance still 100; zero notifications

	s := store.NewMemory()
	purchase := market.NewPurchase(s, testClock())
	ctx := context.Background()

	user := member("u-1", 100)
	seedUser(t, s, user)
	seedProduct(t, s, "p-1", 300)

	_, err := purchase.Buy(ctx, user.ID, "p-1")
	assert.ErrorIs(t, err, market.ErrInsufficientBalance)

	stored, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.Points.Int64())

	notifications, err := s.ListNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, notifications, "failed purchases leave no notification")
}

func TestPurchase_Buy_InactiveAccount(t *testing.T) {
	// GIVEN: A deactivated user with enough points
	// WHEN: The user tries to buy
	// THEN: ErrAccountInactive before any balance check side effect

	s := store.NewMemory()
	purchase := market.NewPurchase(s, testClock())
	ctx := context.Background()

	user := member("u-1", 500)
	user.Active = false
	seedUser(t, s, user)
	seedProduct(t, s, "p-1", 300)

	_, err := purchase.Buy(ctx, user.ID, "p-1")
	assert.ErrorIs(t, err, market.ErrAccountInactive)

	stored, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.Points.Int64())
}

func TestPurchase_Buy_NotFound(t *testing.T) {
	// GIVEN: A store with one user and no products
	// WHEN: Buying with an unknown user or an unknown product
	// THEN: The matching not-found sentinel is returned

	s := store.NewMemory()
	purchase := market.NewPurchase(s, testClock())
	ctx := context.Background()

	seedUser(t, s, member("u-1", 500))

	_, err := purchase.Buy(ctx, "ghost", "p-1")
	assert.ErrorIs(t, err, market.ErrUserNotFound)

	_, err = purchase.Buy(ctx, "u-1", "p-missing")
	assert.ErrorIs(t, err, market.ErrProductNotFound)
}

func TestPurchase_Buy_RollsBackWhenAuditWriteFails(t *testing.T) {
	// GIVEN: A store where the notification write fails mid-transaction
	// WHEN: A purchase runs (debit succeeds, audit append fails)
	// THEN: The whole transaction rolls back: balance intact, no entry,
	//       no notification

	failing := &notifyFailStore{Memory: store.NewMemory()}
	purchase := market.NewPurchase(failing, testClock())
	ctx := context.Background()

	user := member("u-1", 500)
	seedUser(t, failing.Memory, user)
	seedProduct(t, failing.Memory, "p-1", 300)

	_, err := purchase.Buy(ctx, user.ID, "p-1")
	require.ErrorIs(t, err, errInjected)

	stored, err := failing.Memory.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.Points.Int64(), "debit must roll back")

	entries, err := failing.Memory.EntriesForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "ledger entry must roll back")

	notifications, err := failing.Memory.ListNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}
