// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds the cron expressions for the recurring jobs.
type Config struct {
	// Billing tick, charges due subscriptions.
	BillingSpec string
	// Payout run, executes approved settlements.
	PayoutSpec string
}

// Scheduler owns the cron runner and its registered jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	return &Scheduler{
		cron:   c,
		logger: logger,
	}
}

// Register wires the recurring jobs under the given specs.
func (s *Scheduler) Register(cfg Config, billing BillingJob, settlements ApprovedLister, payouts PayoutRunner) error {
	if _, err := s.cron.AddFunc(cfg.BillingSpec, func() {
		s.runBillingTick(billing)
	}); err != nil {
		return fmt.Errorf("failed to register billing job: %w", err)
	}

	if _, err := s.cron.AddFunc(cfg.PayoutSpec, func() {
		s.runPayoutTick(settlements, payouts)
	}); err != nil {
		return fmt.Errorf("failed to register payout job: %w", err)
	}

	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}
