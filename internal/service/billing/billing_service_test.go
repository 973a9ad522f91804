// internal/service/billing/billing_service_test.go
package billing

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/payple"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCharger struct {
	calls  int
	result *payple.BillingChargeResult
	err    error
}

func (c *fakeCharger) ChargeBillingKey(ctx context.Context, req payple.BillingChargeRequest) (*payple.BillingChargeResult, error) {
	c.calls++
	return c.result, c.err
}

type fakeSubStore struct {
	subs  map[int64]*subscription.Subscription
	saves int
}

func newFakeSubStore(subs ...*subscription.Subscription) *fakeSubStore {
	s := &fakeSubStore{subs: make(map[int64]*subscription.Subscription)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeSubStore) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return sub, nil
}

func (s *fakeSubStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	s.saves++
	s.subs[sub.ID] = sub
	return nil
}

func (s *fakeSubStore) FindDue(ctx context.Context, today time.Time, limit int) ([]subscription.Subscription, error) {
	var out []subscription.Subscription
	for _, sub := range s.subs {
		if sub.Status != subscription.StatusCancelled &&
			sub.NextBillingDate.Valid && !sub.NextBillingDate.Time.After(today) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

type fakeLeaser struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeLeaser() *fakeLeaser {
	return &fakeLeaser{held: make(map[string]bool)}
}

func (l *fakeLeaser) Acquire(ctx context.Context, key string) (string, bool, error) {
	l.acquires++
	if l.held[key] {
		return "", false, nil
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLeaser) Release(ctx context.Context, key, token string) error {
	l.releases++
	delete(l.held, key)
	return nil
}

var testNow = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func activeSub(id int64, due time.Time) *subscription.Subscription {
	return &subscription.Subscription{
		ID:              id,
		BuyerID:         11,
		ContentID:       22,
		OptionID:        33,
		OptionName:      "monthly membership",
		OptionPrice:     30900,
		BillingKey:      "bk_0011223344556677",
		NextBillingDate: sql.NullTime{Time: due, Valid: true},
		Status:          subscription.StatusActive,
	}
}

func newTestService(c *fakeCharger, store *fakeSubStore, l *fakeLeaser, cfg Config) *Service {
	svc := NewService(c, store, l, cfg, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestAttemptBillingChargesDueSubscription(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	charger := &fakeCharger{result: &payple.BillingChargeResult{
		Result:    payple.ResultAuthSuccess,
		PaymentID: "pay_1",
	}}
	store := newFakeSubStore(activeSub(1, due))
	leaser := newFakeLeaser()
	svc := newTestService(charger, store, leaser, Config{})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCharged, outcome)
	assert.Equal(t, 1, charger.calls)

	sub := store.subs[1]
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.Equal(t, due.AddDate(0, 1, 0), sub.NextBillingDate.Time)
	assert.Equal(t, testNow, sub.LastBillingSucceededAt.Time)

	assert.Equal(t, 1, leaser.releases, "lease must be released after the attempt")
}

func TestAttemptBillingDeclineOpensGracePeriod(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	charger := &fakeCharger{result: &payple.BillingChargeResult{
		Result:  "A3001",
		Message: "card limit exceeded",
	}}
	store := newFakeSubStore(activeSub(1, due))
	svc := newTestService(charger, store, newFakeLeaser(), Config{GraceDays: 7})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	sub := store.subs[1]
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
	assert.Equal(t, 1, sub.BillingRetryCount)
	assert.Equal(t, "card limit exceeded", sub.LastFailureReason.String)
	require.True(t, sub.GracePeriodEndsAt.Valid)
	assert.Equal(t, testNow.AddDate(0, 0, 7), sub.GracePeriodEndsAt.Time)
}

func TestAttemptBillingTransportErrorIsFailure(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	charger := &fakeCharger{err: errors.New("connection reset")}
	store := newFakeSubStore(activeSub(1, due))
	svc := newTestService(charger, store, newFakeLeaser(), Config{})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, subscription.StatusPastDue, store.subs[1].Status)
}

func TestAttemptBillingSecondFailureKeepsGraceWindow(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	sub := activeSub(1, due)
	sub.Status = subscription.StatusPastDue
	sub.BillingRetryCount = 1
	sub.GracePeriodEndsAt = sql.NullTime{Time: testNow.AddDate(0, 0, 5), Valid: true}
	sub.LastBillingAttemptAt = sql.NullTime{Time: testNow.Add(-2 * time.Hour), Valid: true}

	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: "A3001", Message: "declined"}}
	store := newFakeSubStore(sub)
	svc := newTestService(charger, store, newFakeLeaser(), Config{})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 2, store.subs[1].BillingRetryCount)
	assert.Equal(t, testNow.AddDate(0, 0, 5), store.subs[1].GracePeriodEndsAt.Time,
		"grace window opens once per cycle")
}

func TestAttemptBillingRetryIntervalThrottles(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	sub := activeSub(1, due)
	sub.Status = subscription.StatusPastDue
	sub.BillingRetryCount = 1
	sub.LastBillingAttemptAt = sql.NullTime{Time: testNow.Add(-5 * time.Minute), Valid: true}
	sub.GracePeriodEndsAt = sql.NullTime{Time: testNow.AddDate(0, 0, 7), Valid: true}

	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(sub)
	svc := newTestService(charger, store, newFakeLeaser(), Config{RetryIntervalMinutes: 30})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, outcome)
	assert.Equal(t, 0, charger.calls)
}

func TestAttemptBillingLapsesAfterRetriesAndGrace(t *testing.T) {
	due := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	sub := activeSub(1, due)
	sub.Status = subscription.StatusPastDue
	sub.BillingRetryCount = 3
	sub.GracePeriodEndsAt = sql.NullTime{Time: testNow.AddDate(0, 0, -1), Valid: true}

	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(sub)
	svc := newTestService(charger, store, newFakeLeaser(), Config{MaxRetries: 3})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLapsed, outcome)
	assert.Equal(t, subscription.StatusCancelled, store.subs[1].Status)
	assert.Equal(t, 0, charger.calls, "a lapsed subscription must not be charged")
}

func TestAttemptBillingRetriesWhileGraceActive(t *testing.T) {
	due := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	sub := activeSub(1, due)
	sub.Status = subscription.StatusPastDue
	sub.BillingRetryCount = 3
	sub.GracePeriodEndsAt = sql.NullTime{Time: testNow.AddDate(0, 0, 2), Valid: true}

	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(sub)
	svc := newTestService(charger, store, newFakeLeaser(), Config{MaxRetries: 3})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCharged, outcome)
	assert.Equal(t, subscription.StatusActive, store.subs[1].Status)
	assert.False(t, store.subs[1].GracePeriodEndsAt.Valid)
}

func TestAttemptBillingSkipsWhenLeaseHeld(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(activeSub(1, due))
	leaser := newFakeLeaser()
	leaser.held["subscription:1"] = true
	svc := newTestService(charger, store, leaser, Config{})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedLocked, outcome)
	assert.Equal(t, 0, charger.calls)
	assert.Equal(t, 0, leaser.releases, "a lease we never held must not be released")
}

func TestAttemptBillingNotDueBeforeDate(t *testing.T) {
	future := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(activeSub(1, future))
	svc := newTestService(charger, store, newFakeLeaser(), Config{})

	outcome, err := svc.AttemptBilling(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, outcome)
	assert.Equal(t, 0, charger.calls)
}

func TestProcessDueSubscriptionsAggregates(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ok1 := activeSub(1, due)
	ok2 := activeSub(2, due)
	notDue := activeSub(3, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))

	charger := &fakeCharger{result: &payple.BillingChargeResult{Result: payple.ResultAuthSuccess}}
	store := newFakeSubStore(ok1, ok2, notDue)
	svc := newTestService(charger, store, newFakeLeaser(), Config{})

	stats, err := svc.ProcessDueSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 2, stats.Charged)
	assert.Equal(t, 0, stats.Failed)
}

func TestCancelAndResume(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeSubStore(activeSub(1, due))
	svc := newTestService(&fakeCharger{}, store, newFakeLeaser(), Config{})

	sub, err := svc.Cancel(context.Background(), 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.Equal(t, testNow, sub.CancelledAt.Time)

	_, err = svc.Cancel(context.Background(), 1, time.Time{})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	next := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sub, err = svc.Resume(context.Background(), 1, "bk_new_key_11223344", next)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, next, sub.NextBillingDate.Time)

	_, err = svc.Resume(context.Background(), 1, "bk_new_key_11223344", next)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}
