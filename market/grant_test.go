package market_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/market"
	"github.com/warp/pointsmarket/market/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func balanceOf(t *testing.T, s market.Store, id market.UserID) int64 {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Points.Int64()
}

// =============================================================================
// BULK GRANT TESTS
// =============================================================================

func TestBulkGrant_Run_CreditsAllActiveUsers(t *testing.T) {
	// GIVEN: Active users with 0, 50 and 1000 points, plus one inactive user
	// WHEN: Running a bulk grant of 1000
	// THEN: Active balances become 1000, 1050, 2000; the inactive user is
	//       untouched

	s := store.NewMemory()
	grant := market.NewBulkGrant(s, testClock(), quietLogger())
	ctx := context.Background()

	seedUser(t, s, member("u-a", 0))
	seedUser(t, s, member("u-b", 50))
	seedUser(t, s, member("u-c", 1000))
	sleeping := member("u-d", 25)
	sleeping.Active = false
	seedUser(t, s, sleeping)

	summary, err := grant.Run(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Credited)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)

	assert.Equal(t, int64(1000), balanceOf(t, s, "u-a"))
	assert.Equal(t, int64(1050), balanceOf(t, s, "u-b"))
	assert.Equal(t, int64(2000), balanceOf(t, s, "u-c"))
	assert.Equal(t, int64(25), balanceOf(t, s, "u-d"), "inactive users get nothing")
}

func TestBulkGrant_Run_IdempotentRerun(t *testing.T) {
	// GIVEN: A completed run "run-1"
	// WHEN: The same runID is executed again
	// THEN: Every user is skipped and no balance moves twice

	s := store.NewMemory()
	grant := market.NewBulkGrant(s, testClock(), quietLogger())
	ctx := context.Background()

	seedUser(t, s, member("u-a", 0))
	seedUser(t, s, member("u-b", 50))

	first, err := grant.Run(ctx, "run-1", "")
	require.NoError(t, err)
	require.Equal(t, 2, first.Credited)

	second, err := grant.Run(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Zero(t, second.Credited)
	assert.Equal(t, 2, second.Skipped)

	assert.Equal(t, int64(1000), balanceOf(t, s, "u-a"))
	assert.Equal(t, int64(1050), balanceOf(t, s, "u-b"))
}

func TestBulkGrant_Run_PartialFailureIsolation(t *testing.T) {
	// GIVEN: Three active users, where crediting the second always fails
	// WHEN: Running a grant
	// THEN: The first and third are credited; the failure is counted, not
	//       propagated

	failing := &userFailStore{Memory: store.NewMemory(), failUser: "u-b"}
	grant := market.NewBulkGrant(failing, testClock(), quietLogger())
	ctx := context.Background()

	seedUser(t, failing.Memory, member("u-a", 0))
	seedUser(t, failing.Memory, member("u-b", 0))
	seedUser(t, failing.Memory, member("u-c", 0))

	summary, err := grant.Run(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Credited)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, int64(1000), balanceOf(t, failing.Memory, "u-a"))
	assert.Equal(t, int64(0), balanceOf(t, failing.Memory, "u-b"))
	assert.Equal(t, int64(1000), balanceOf(t, failing.Memory, "u-c"))
}

func TestBulkGrant_Run_CancellationBetweenUsers(t *testing.T) {
	// GIVEN: A context cancelled before the run starts iterating
	// WHEN: Running a grant over two users
	// THEN: ctx.Err() is returned and no user was credited after the
	//       cancellation point

	s := store.NewMemory()
	grant := market.NewBulkGrant(s, testClock(), quietLogger())

	seedUser(t, s, member("u-a", 0))
	seedUser(t, s, member("u-b", 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := grant.Run(ctx, "run-1", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Credited)
	assert.Equal(t, int64(0), balanceOf(t, s, "u-a"))
	assert.Equal(t, int64(0), balanceOf(t, s, "u-b"))
}

func TestBulkGrant_Run_SummaryNotification(t *testing.T) {
	// GIVEN: An admin dispatching a grant over two active users
	// WHEN: The run completes
	// THEN: One summary notification is recorded for the admin

	s := store.NewMemory()
	grant := market.NewBulkGrant(s, testClock(), quietLogger())
	ctx := context.Background()

	boss := admin("admin-1")
	seedUser(t, s, boss)
	seedUser(t, s, member("u-a", 0))

	summary, err := grant.Run(ctx, "run-1", boss.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Credited, "the admin account is active too")

	notifications, err := s.ListNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, boss.ID, notifications[0].UserID)
	assert.Contains(t, notifications[0].Label, "2")
}

func TestBulkGrant_Run_CustomBonus(t *testing.T) {
	// GIVEN: A grant configured with a 250 point bonus
	// WHEN: Running over one user
	// THEN: The custom bonus is applied

	s := store.NewMemory()
	grant := market.NewBulkGrant(s, testClock(), quietLogger())
	grant.Bonus = market.NewAmount(250)
	ctx := context.Background()

	seedUser(t, s, member("u-a", 10))

	_, err := grant.Run(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(260), balanceOf(t, s, "u-a"))
}

// =============================================================================
// FAILURE INJECTION
// =============================================================================

// userFailStore makes every transaction touching failUser fail at SaveUser.
type userFailStore struct {
	*store.Memory
	failUser market.UserID
}

var errPoisoned = errors.New("injected save failure")

func (f *userFailStore) WithTx(ctx context.Context, fn func(market.Store) error) error {
	return f.Memory.WithTx(ctx, func(s market.Store) error {
		return fn(&userFailView{Store: s, failUser: f.failUser})
	})
}

type userFailView struct {
	market.Store
	failUser market.UserID
}

func (v *userFailView) SaveUser(ctx context.Context, u *market.User) error {
	if u.ID == v.failUser {
		return errPoisoned
	}
	return v.Store.SaveUser(ctx, u)
}
