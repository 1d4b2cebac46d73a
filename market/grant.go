/*
grant.go - Bulk point grant job

PURPOSE:
  Grants a fixed bonus (default 1000 points) to every active user. Runs
  out-of-band from any request; the HTTP layer only enqueues it.

DESIGN:
  - Snapshot: the set of active users is fixed at dispatch time; users
    activated mid-run may or may not be included
  - Partial-failure isolation: each user's credit is its own transaction;
    one failure is logged and counted, iteration continues
  - Idempotency: the per-user key "grant-<runID>-<userID>" makes a re-run
    of the same runID a no-op for already-credited users
  - Cancellation: the context is checked between users (best effort)
  - Observability: one summary notification per run, attributed to the
    dispatching actor, recording how many users were credited

The per-user optimistic-lock retry here is the only automatic retry in
the core.
*/
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultBonus is the per-user grant when no bonus is configured.
const DefaultBonus = 1000

// BulkGrant credits a fixed bonus to every active user.
type BulkGrant struct {
	Store   TxStore
	Ledger  *Ledger
	Audit   *AuditLog
	Clock   Clock
	Logger  *slog.Logger
	Bonus   Amount
	Metrics Recorder
}

// NewBulkGrant wires a BulkGrant with the default bonus.
func NewBulkGrant(store TxStore, clock Clock, logger *slog.Logger) *BulkGrant {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkGrant{
		Store:  store,
		Ledger: NewLedger(clock),
		Audit:  NewAuditLog(clock),
		Clock:  clock,
		Logger: logger,
		Bonus:  NewAmount(DefaultBonus),
	}
}

// GrantSummary reports the outcome of one run.
type GrantSummary struct {
	RunID    string
	Credited int
	Skipped  int // already credited under this runID (idempotent re-run)
	Failed   int
}

// Run credits the bonus to every user active at dispatch time. A failure
// on one user does not abort the others. Returns ctx.Err() if cancelled
// between users; credits applied before cancellation remain committed.
func (g *BulkGrant) Run(ctx context.Context, runID string, actorID UserID) (GrantSummary, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	bonus := g.Bonus
	if !bonus.IsPositive() {
		bonus = NewAmount(DefaultBonus)
	}

	summary := GrantSummary{RunID: runID}

	// Snapshot at dispatch time.
	users, err := g.Store.ListActiveUsers(ctx)
	if err != nil {
		return summary, fmt.Errorf("bulk grant %s: list active users: %w", runID, err)
	}

	for _, u := range users {
		select {
		case <-ctx.Done():
			g.Logger.Warn("bulk grant cancelled",
				slog.String("run_id", runID),
				slog.Int("credited", summary.Credited))
			return summary, ctx.Err()
		default:
		}

		err := g.creditOne(ctx, u.ID, bonus, runID)
		if IsRetryable(err) {
			err = g.creditOne(ctx, u.ID, bonus, runID)
		}

		switch {
		case errors.Is(err, ErrDuplicateEntry):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			g.Logger.Error("bulk grant credit failed",
				slog.String("run_id", runID),
				slog.String("user_id", string(u.ID)),
				slog.String("error", err.Error()))
		default:
			summary.Credited++
		}
	}

	if err := g.appendSummary(ctx, actorID, summary, bonus); err != nil {
		g.Logger.Error("bulk grant summary notification failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}

	if g.Metrics != nil {
		g.Metrics.RecordGrantRun(summary.Credited, bonus.Int64()*int64(summary.Credited))
	}

	g.Logger.Info("bulk grant completed",
		slog.String("run_id", runID),
		slog.Int("credited", summary.Credited),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))

	return summary, nil
}

// creditOne applies the bonus to a single user in its own transaction.
// The user is reloaded inside the transaction; a user deleted since the
// snapshot is treated as not found.
func (g *BulkGrant) creditOne(ctx context.Context, userID UserID, bonus Amount, runID string) error {
	return g.Store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		key := fmt.Sprintf("grant-%s-%s", runID, userID)
		_, err = g.Ledger.Credit(ctx, s, user, bonus, "bulk-grant:"+runID, key)
		return err
	})
}

// appendSummary records the run's summary notification in its own
// transaction, attributed to the dispatching actor.
func (g *BulkGrant) appendSummary(ctx context.Context, actorID UserID, summary GrantSummary, bonus Amount) error {
	if actorID == "" {
		return nil
	}
	return g.Store.WithTx(ctx, func(s Store) error {
		now := g.Clock.Now()
		_, err := g.Audit.Append(ctx, s, actorID, GrantSummaryLabel(summary.Credited, bonus, now), now)
		return err
	})
}
