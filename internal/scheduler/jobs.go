// internal/scheduler/jobs.go
package scheduler

import (
	"context"
	"time"

	"groble-service/internal/service/billing"
	"groble-service/internal/service/payout"

	"go.uber.org/zap"
)

// BillingJob is the billing service surface the scheduler drives.
type BillingJob interface {
	ProcessDueSubscriptions(ctx context.Context) (billing.TickStats, error)
}

// ApprovedLister finds settlements approved but not yet paid out.
type ApprovedLister interface {
	FindApprovedIDs(ctx context.Context, limit int) ([]int64, error)
}

// PayoutRunner executes the payout chain for a batch of settlements.
type PayoutRunner interface {
	ExecutePayouts(ctx context.Context, ids []int64) ([]payout.Result, error)
}

const (
	tickTimeout      = 10 * time.Minute
	payoutBatchLimit = 50
)

func (s *Scheduler) runBillingTick(job BillingJob) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	stats, err := job.ProcessDueSubscriptions(ctx)
	if err != nil {
		s.logger.Error("billing tick failed", zap.Error(err))
		return
	}

	if stats.Due > 0 {
		s.logger.Info("billing tick done",
			zap.Int("due", stats.Due),
			zap.Int("charged", stats.Charged),
			zap.Int("failed", stats.Failed),
		)
	}
}

func (s *Scheduler) runPayoutTick(settlements ApprovedLister, runner PayoutRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	ids, err := settlements.FindApprovedIDs(ctx, payoutBatchLimit)
	if err != nil {
		s.logger.Error("payout tick failed to list approved settlements", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	results, err := runner.ExecutePayouts(ctx, ids)
	if err != nil {
		s.logger.Error("payout tick failed", zap.Error(err))
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			succeeded++
		}
	}
	s.logger.Info("payout tick done",
		zap.Int("attempted", len(results)),
		zap.Int("succeeded", succeeded),
	)
}
