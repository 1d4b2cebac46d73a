package jobs

import (
	"context"

	"github.com/warp/pointsmarket/market"
)

// BulkGrantJob adapts market.BulkGrant to the queue. Each dispatch
// carries its own run ID so a re-enqueued run stays idempotent, and the
// actor the summary notification is attributed to.
type BulkGrantJob struct {
	Runner  *market.BulkGrant
	RunID   string
	ActorID market.UserID
}

func (j *BulkGrantJob) Name() string { return "bulk-grant" }

func (j *BulkGrantJob) Run(ctx context.Context) error {
	_, err := j.Runner.Run(ctx, j.RunID, j.ActorID)
	return err
}
