package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/market"
	"github.com/warp/pointsmarket/market/store"
)

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestAuditLog_Append_RejectsEmptyLabel(t *testing.T) {
	// GIVEN: An audit log
	// WHEN: Appending a blank or whitespace-only label
	// THEN: ErrEmptyLabel and nothing is stored

	s := store.NewMemory()
	audit := market.NewAuditLog(testClock())
	ctx := context.Background()

	for _, label := range []string{"", "   ", "\t\n"} {
		_, err := audit.Append(ctx, s, "u-1", label, time.Time{})
		assert.ErrorIs(t, err, market.ErrEmptyLabel, "label %q should be rejected", label)
	}

	notifications, err := s.ListNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestAuditLog_Append_TimestampsInUTCSeconds(t *testing.T) {
	// GIVEN: A creation time in a non-UTC zone with sub-second precision
	// WHEN: Appending a notification at that time
	// THEN: The stored timestamp is UTC, truncated to whole seconds

	s := store.NewMemory()
	audit := market.NewAuditLog(testClock())
	ctx := context.Background()

	paris := time.FixedZone("CET", 3600)
	at := time.Date(2026, time.March, 14, 10, 30, 45, 987654321, paris)

	id, err := audit.Append(ctx, s, "u-1", "achat du produit X", at)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	notifications, err := s.ListNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	want := time.Date(2026, time.March, 14, 9, 30, 45, 0, time.UTC)
	assert.True(t, notifications[0].CreatedAt.Equal(want),
		"got %s, want %s", notifications[0].CreatedAt, want)
	assert.Equal(t, time.UTC, notifications[0].CreatedAt.Location())
}

func TestAuditLog_Append_ZeroTimeUsesClock(t *testing.T) {
	// GIVEN: An audit log driven by a fixed clock
	// WHEN: Appending with the zero time
	// THEN: The clock's instant is used

	s := store.NewMemory()
	clock := testClock()
	audit := market.NewAuditLog(clock)
	ctx := context.Background()

	_, err := audit.Append(ctx, s, "u-1", "test", time.Time{})
	require.NoError(t, err)

	notifications, err := s.ListNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].CreatedAt.Equal(clock.Now().Truncate(time.Second)))
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestAuditLog_ListRecent_NewestFirst(t *testing.T) {
	// GIVEN: Three notifications appended a minute apart
	// WHEN: Listing recent notifications
	// THEN: They come back newest first, and the limit is honored

	s := store.NewMemory()
	audit := market.NewAuditLog(testClock())
	ctx := context.Background()

	base := testClock().Now()
	for i, label := range []string{"first", "second", "third"} {
		_, err := audit.Append(ctx, s, "u-1", label, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	all, err := audit.ListRecent(ctx, s, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Label)
	assert.Equal(t, "second", all[1].Label)
	assert.Equal(t, "first", all[2].Label)

	limited, err := audit.ListRecent(ctx, s, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].Label)
}

func TestAuditLog_ListRecent_TiesBrokenByIDDescending(t *testing.T) {
	// GIVEN: Two notifications sharing the exact same timestamp
	// WHEN: Listing
	// THEN: The larger ID comes first, so ordering is stable

	s := store.NewMemory()
	ctx := context.Background()
	at := testClock().Now()

	for _, id := range []string{"n-01", "n-02"} {
		err := s.AppendNotification(ctx, market.Notification{
			ID:        market.NotificationID(id),
			UserID:    "u-1",
			Label:     "same instant",
			CreatedAt: at,
		})
		require.NoError(t, err)
	}

	audit := market.NewAuditLog(testClock())
	got, err := audit.ListRecent(ctx, s, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, market.NotificationID("n-02"), got[0].ID)
	assert.Equal(t, market.NotificationID("n-01"), got[1].ID)
}
