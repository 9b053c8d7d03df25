package schedulerengine

import (
	"context"
	"time"

	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
)

// PendingRecovery dispatches again the pending submissions nobody finished,
// such as work queued when the service went down. It sweeps once on start
// and then on every tick.
type PendingRecovery struct {
	cfg         *config.PipelineCfg
	submissions secondary.PendingSubmissionLister
	dispatcher  secondary.EvaluationDispatcher
	logger      primary.Logger
	now         func() time.Time
}

func NewPendingRecovery(
	cfg *config.PipelineCfg,
	submissions secondary.PendingSubmissionLister,
	dispatcher secondary.EvaluationDispatcher,
	logger primary.Logger,
) *PendingRecovery {
	return &PendingRecovery{
		cfg:         cfg,
		submissions: submissions,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// Start runs the sweep loop until ctx is done. The returned channel is
// closed once the loop has exited.
func (r *PendingRecovery) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Sweep(ctx)
		if r.cfg.RecoveryInterval <= 0 {
			return
		}
		ticker := time.NewTicker(r.cfg.RecoveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
	return done
}

// Sweep dispatches one batch of stale pending submissions and returns how
// many were handed over. It stops at the first dispatch failure.
func (r *PendingRecovery) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.cfg.RecoveryStaleAfter)
	ids, err := r.submissions.GetPendingSubmissions(ctx, cutoff, r.cfg.RecoveryBatch)
	if err != nil {
		r.logger.Error("Failed to get pending submissions", "error", err)
		return 0
	}

	dispatched := 0
	for _, id := range ids {
		if err := r.dispatcher.Dispatch(ctx, id); err != nil {
			r.logger.Warn("Failed to redispatch pending submission", "submissionId", id, "error", err)
			break
		}
		dispatched++
	}
	if dispatched > 0 {
		r.logger.Info("Pending submissions redispatched", "count", dispatched)
	}
	return dispatched
}
