// internal/service/billing/billing_service.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/payple"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Outcome classifies one billing attempt.
type Outcome string

const (
	OutcomeCharged       Outcome = "charged"
	OutcomeNotDue        Outcome = "not_due"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkippedLocked Outcome = "skipped_locked"
	OutcomeLapsed        Outcome = "lapsed"
)

// Charger is the slice of the payment gateway billing needs.
type Charger interface {
	ChargeBillingKey(ctx context.Context, req payple.BillingChargeRequest) (*payple.BillingChargeResult, error)
}

// SubscriptionStore loads and persists subscriptions.
type SubscriptionStore interface {
	FindByID(ctx context.Context, id int64) (*subscription.Subscription, error)
	Save(ctx context.Context, sub *subscription.Subscription) error
	FindDue(ctx context.Context, today time.Time, limit int) ([]subscription.Subscription, error)
}

// Leaser serializes billing per subscription across processes.
type Leaser interface {
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Config tunes the retry and lapse behavior.
type Config struct {
	// Minimum minutes between attempts on the same due subscription.
	RetryIntervalMinutes int
	// Days of grace opened by the first failed charge of a cycle.
	GraceDays int
	// Failed attempts after which a lapsed subscription is cancelled once
	// its grace period has also run out.
	MaxRetries int
	// Upper bound per scheduler tick.
	DueBatchLimit int
}

func (c Config) withDefaults() Config {
	if c.RetryIntervalMinutes <= 0 {
		c.RetryIntervalMinutes = 30
	}
	if c.GraceDays <= 0 {
		c.GraceDays = 7
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DueBatchLimit <= 0 {
		c.DueBatchLimit = 200
	}
	return c
}

// TickStats summarizes one scheduler pass over the due subscriptions.
type TickStats struct {
	Due     int `json:"due"`
	Charged int `json:"charged"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Lapsed  int `json:"lapsed"`
}

// Service runs recurring charges against stored billing keys. A redis
// lease per subscription id guarantees at most one in-flight attempt per
// subscription even with overlapping scheduler ticks.
type Service struct {
	charger       Charger
	subscriptions SubscriptionStore
	leases        Leaser
	cfg           Config
	logger        *zap.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewService(charger Charger, subscriptions SubscriptionStore, leases Leaser, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		charger:       charger,
		subscriptions: subscriptions,
		leases:        leases,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		now:           time.Now,
	}
}

// AttemptBilling runs one charge attempt for the subscription. It takes
// the per-subscription lease first; a held lease means another worker is
// already on it and the attempt is skipped, not failed.
func (s *Service) AttemptBilling(ctx context.Context, subscriptionID int64) (Outcome, error) {
	leaseKey := "subscription:" + strconv.FormatInt(subscriptionID, 10)

	token, ok, err := s.leases.Acquire(ctx, leaseKey)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to acquire billing lease: %w", err)
	}
	if !ok {
		return OutcomeSkippedLocked, nil
	}
	defer func() {
		if err := s.leases.Release(ctx, leaseKey, token); err != nil {
			s.logger.Warn("failed to release billing lease",
				zap.Int64("subscription_id", subscriptionID),
				zap.Error(err),
			)
		}
	}()

	sub, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to load subscription %d: %w", subscriptionID, err)
	}

	now := s.now()
	today := truncateToDay(now)

	// Lapse policy: with the retry budget spent and the grace period over,
	// the subscription is cancelled instead of charged again.
	if sub.Status == subscription.StatusPastDue &&
		sub.BillingRetryCount >= s.cfg.MaxRetries &&
		!sub.IsGracePeriodActive(now) {
		sub.MarkCancelled(now, now)
		if err := s.subscriptions.Save(ctx, sub); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to cancel lapsed subscription %d: %w", subscriptionID, err)
		}
		s.logger.Info("subscription lapsed",
			zap.Int64("subscription_id", subscriptionID),
			zap.Int("retry_count", sub.BillingRetryCount),
		)
		return OutcomeLapsed, nil
	}

	if !sub.CanAttemptBilling(today, now, s.cfg.RetryIntervalMinutes) {
		return OutcomeNotDue, nil
	}

	result, err := s.charger.ChargeBillingKey(ctx, payple.BillingChargeRequest{
		BillingKey: sub.BillingKey,
		Amount:     sub.OptionPrice,
		OrderName:  sub.OptionName,
		OrderRef:   ulid.Make().String(),
	})
	if err != nil {
		return s.recordFailure(ctx, sub, now, err.Error())
	}
	if result.Result != payple.ResultAuthSuccess {
		return s.recordFailure(ctx, sub, now, result.Message)
	}

	sub.MarkBillingSuccess(now)
	sub.NextBillingDate = sql.NullTime{Time: nextCycle(sub.NextBillingDate.Time, today), Valid: true}

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to save charged subscription %d: %w", subscriptionID, err)
	}

	s.logger.Info("subscription charged",
		zap.Int64("subscription_id", subscriptionID),
		zap.Int64("amount", sub.OptionPrice),
		zap.String("payment_id", result.PaymentID),
		zap.Time("next_billing_date", sub.NextBillingDate.Time),
	)
	return OutcomeCharged, nil
}

func (s *Service) recordFailure(ctx context.Context, sub *subscription.Subscription, now time.Time, reason string) (Outcome, error) {
	sub.MarkBillingFailure(now, reason)
	if sub.BillingRetryCount == 1 {
		sub.StartGracePeriod(now, s.cfg.GraceDays)
	}

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to save failed subscription %d: %w", sub.ID, err)
	}

	s.logger.Warn("subscription charge declined",
		zap.Int64("subscription_id", sub.ID),
		zap.Int("retry_count", sub.BillingRetryCount),
		zap.String("reason", reason),
	)
	return OutcomeFailed, nil
}

// ProcessDueSubscriptions is the scheduler entry point: it walks the due
// subscriptions and attempts each one. Per-subscription errors are folded
// into the stats so one broken row cannot stall the batch.
func (s *Service) ProcessDueSubscriptions(ctx context.Context) (TickStats, error) {
	now := s.now()
	today := truncateToDay(now)

	due, err := s.subscriptions.FindDue(ctx, today, s.cfg.DueBatchLimit)
	if err != nil {
		return TickStats{}, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	stats := TickStats{Due: len(due)}
	for i := range due {
		outcome, err := s.AttemptBilling(ctx, due[i].ID)
		if err != nil {
			s.logger.Error("billing attempt errored",
				zap.Int64("subscription_id", due[i].ID),
				zap.Error(err),
			)
		}

		switch outcome {
		case OutcomeCharged:
			stats.Charged++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeSkippedLocked, OutcomeNotDue:
			stats.Skipped++
		case OutcomeLapsed:
			stats.Lapsed++
		}
	}

	s.logger.Info("billing tick finished",
		zap.Int("due", stats.Due),
		zap.Int("charged", stats.Charged),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("lapsed", stats.Lapsed),
	)
	return stats, nil
}

// Cancel marks a subscription cancelled, effective at `at` (zero means
// immediately). Cancelling an already cancelled subscription is rejected.
func (s *Service) Cancel(ctx context.Context, subscriptionID int64, at time.Time) (*subscription.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusCancelled {
		return nil, fmt.Errorf("%w: subscription is already cancelled", xerrors.ErrInvalidInput)
	}

	sub.MarkCancelled(at, s.now())
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save cancelled subscription %d: %w", subscriptionID, err)
	}

	s.logger.Info("subscription cancelled",
		zap.Int64("subscription_id", subscriptionID),
		zap.Time("cancelled_at", sub.CancelledAt.Time),
	)
	return sub, nil
}

// Resume reactivates a cancelled subscription with a fresh billing key.
func (s *Service) Resume(ctx context.Context, subscriptionID int64, billingKey string, nextBillingDate time.Time) (*subscription.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := sub.Resume(billingKey, nextBillingDate, s.now()); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save resumed subscription %d: %w", subscriptionID, err)
	}

	s.logger.Info("subscription resumed",
		zap.Int64("subscription_id", subscriptionID),
		zap.Time("next_billing_date", nextBillingDate),
	)
	return sub, nil
}

// nextCycle advances the billing date one month from the scheduled date.
// When the subscription has drifted (grace recovery long after the due
// date), the next date is anchored to today instead so it lands in the
// future.
func nextCycle(scheduled, today time.Time) time.Time {
	next := scheduled.AddDate(0, 1, 0)
	if !next.After(today) {
		next = today.AddDate(0, 1, 0)
	}
	return next
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
