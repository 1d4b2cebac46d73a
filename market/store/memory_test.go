package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/market"
	"github.com/warp/pointsmarket/market/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testUser(id string, points int64) *market.User {
	return &market.User{
		ID:        market.UserID(id),
		FirstName: "Test",
		LastName:  "User",
		Email:     id + "@example.com",
		Role:      market.RoleMember,
		Active:    true,
		Points:    market.NewAmount(points),
		CreatedAt: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestMemory_GetUser_AbsentReturnsNilNil(t *testing.T) {
	m := store.NewMemory()
	u, err := m.GetUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestMemory_SaveUser_OptimisticVersioning(t *testing.T) {
	// GIVEN: A stored user at version 1
	// WHEN: Saving from a stale copy (version 0)
	// THEN: ErrConcurrencyConflict; a matching version saves and bumps

	m := store.NewMemory()
	ctx := context.Background()

	fresh := testUser("u-1", 100)
	require.NoError(t, m.SaveUser(ctx, fresh))
	assert.Equal(t, int64(1), fresh.Version)

	stale := testUser("u-1", 999)
	stale.Version = 0
	err := m.SaveUser(ctx, stale)
	assert.ErrorIs(t, err, market.ErrConcurrencyConflict)

	fresh.Points = market.NewAmount(150)
	require.NoError(t, m.SaveUser(ctx, fresh))
	assert.Equal(t, int64(2), fresh.Version)

	got, err := m.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Points.Int64())
}

func TestMemory_GetUser_ReturnsACopy(t *testing.T) {
	// Mutating the returned record must not leak into the store.
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveUser(ctx, testUser("u-1", 100)))

	first, err := m.GetUser(ctx, "u-1")
	require.NoError(t, err)
	first.Points = market.NewAmount(9999)

	second, err := m.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), second.Points.Int64())
}

func TestMemory_ListActiveUsers_FiltersInactive(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveUser(ctx, testUser("u-1", 0)))
	off := testUser("u-2", 0)
	off.Active = false
	require.NoError(t, m.SaveUser(ctx, off))

	active, err := m.ListActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, market.UserID("u-1"), active[0].ID)

	all, err := m.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// NOTIFICATION TESTS
// =============================================================================

func TestMemory_ListNotifications_OrderAndLimit(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, time.February, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"n-1", "n-2", "n-3"} {
		require.NoError(t, m.AppendNotification(ctx, market.Notification{
			ID:        market.NotificationID(id),
			UserID:    "u-1",
			Label:     id,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := m.ListNotifications(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, market.NotificationID("n-3"), got[0].ID)
	assert.Equal(t, market.NotificationID("n-2"), got[1].ID)
}

// =============================================================================
// LEDGER ENTRY TESTS
// =============================================================================

func TestMemory_AppendEntry_DuplicateKey(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	entry := market.LedgerEntry{
		ID:             "e-1",
		UserID:         "u-1",
		Delta:          market.NewAmount(10),
		Type:           market.EntryCredit,
		IdempotencyKey: "key-1",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, m.AppendEntry(ctx, entry))

	entry.ID = "e-2"
	err := m.AppendEntry(ctx, entry)
	assert.ErrorIs(t, err, market.ErrDuplicateEntry)

	exists, err := m.EntryExists(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.EntryExists(ctx, "key-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestMemory_WithTx_CommitsOnNil(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(s market.Store) error {
		return s.SaveUser(ctx, testUser("u-1", 100))
	})
	require.NoError(t, err)

	got, err := m.GetUser(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A committed user at 100 points
	// WHEN: A transaction mutates the user and an entry, then fails
	// THEN: Neither write survives

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveUser(ctx, testUser("u-1", 100)))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(s market.Store) error {
		u, err := s.GetUser(ctx, "u-1")
		if err != nil {
			return err
		}
		u.Points = market.NewAmount(0)
		if err := s.SaveUser(ctx, u); err != nil {
			return err
		}
		if err := s.AppendEntry(ctx, market.LedgerEntry{
			ID: "e-1", UserID: "u-1", Delta: market.NewAmount(-100),
			Type: market.EntryDebit, IdempotencyKey: "k-1",
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Points.Int64())

	entries, err := m.EntriesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	exists, err := m.EntryExists(ctx, "k-1")
	require.NoError(t, err)
	assert.False(t, exists, "idempotency index must roll back too")
}

func TestMemory_WithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(s market.Store) error {
		if err := s.SaveUser(ctx, testUser("u-1", 42)); err != nil {
			return err
		}
		u, err := s.GetUser(ctx, "u-1")
		if err != nil {
			return err
		}
		require.NotNil(t, u)
		assert.Equal(t, int64(42), u.Points.Int64())
		return nil
	})
	require.NoError(t, err)
}
