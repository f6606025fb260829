package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const sweepBatchSize = 100

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "expire_posted_sweep" }

// PostLister finds posted jobs whose start time has passed.
type PostLister interface {
	ListStalePostedIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// Expirer runs the posted→expired transition for one post.
type Expirer interface {
	Expire(ctx context.Context, jobPostID uuid.UUID) error
}

// SweepWorker expires posted jobs nobody accepted before their scheduled
// start. Each post gets its own transaction, so one failure never blocks
// the rest of the batch; a skipped post is picked up on the next sweep.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	posts     PostLister
	lifecycle Expirer
	logger    *slog.Logger
}

func NewSweepWorker(posts PostLister, lifecycle Expirer, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{posts: posts, lifecycle: lifecycle, logger: logger}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	ids, err := w.posts.ListStalePostedIDs(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return err
	}
	var expired int
	for _, id := range ids {
		if err := w.lifecycle.Expire(ctx, id); err != nil {
			// A concurrent accept may have beaten the sweep; that is fine.
			w.logger.Warn("expire sweep skipped post", "job_post_id", id, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		w.logger.Info("expire sweep done", "expired", expired, "candidates", len(ids))
	}
	return nil
}
