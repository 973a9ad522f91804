// internal/service/subscription/subscription_service_test.go
package subscription

import (
	"context"
	"testing"
	"time"

	domain "groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	subs       map[int64]*domain.Subscription
	nextID     int64
	activePair map[[2]int64]bool
	created    []*domain.Subscription
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:       make(map[int64]*domain.Subscription),
		nextID:     1,
		activePair: make(map[[2]int64]bool),
	}
}

func (f *fakeStore) Create(_ context.Context, sub *domain.Subscription) error {
	sub.ID = f.nextID
	f.nextID++
	f.subs[sub.ID] = sub
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeStore) Save(_ context.Context, sub *domain.Subscription) error {
	if _, ok := f.subs[sub.ID]; !ok {
		return xerrors.ErrNotFound
	}
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeStore) FindByID(_ context.Context, id int64) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return sub, nil
}

func (f *fakeStore) List(_ context.Context, filters *domain.ListFilters) ([]domain.Subscription, int64, error) {
	out := make([]domain.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, *sub)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) FindDue(_ context.Context, _ time.Time, _ int) ([]domain.Subscription, error) {
	return nil, nil
}

func (f *fakeStore) ExistsActiveByBuyerAndContent(_ context.Context, buyerID, contentID int64) (bool, error) {
	return f.activePair[[2]int64{buyerID, contentID}], nil
}

func activateRequest() domain.ActivateRequest {
	return domain.ActivateRequest{
		BuyerID:         100,
		ContentID:       200,
		PurchaseID:      300,
		OptionID:        400,
		OptionName:      "monthly",
		OptionPrice:     9900,
		BillingKey:      "bill-key-001",
		NextBillingDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestActivate_CreatesActiveSubscription(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())

	sub, err := svc.Activate(context.Background(), activateRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sub.ID)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.True(t, sub.NextBillingDate.Valid)
	require.Len(t, store.created, 1)
}

func TestActivate_RejectsDuplicateLiveSubscription(t *testing.T) {
	store := newFakeStore()
	store.activePair[[2]int64{100, 200}] = true
	svc := NewService(store, zap.NewNop())

	_, err := svc.Activate(context.Background(), activateRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrConflict)
	assert.Empty(t, store.created)
}

func TestActivate_RejectsBlankBillingKey(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())

	req := activateRequest()
	req.BillingKey = "   "

	_, err := svc.Activate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	assert.Empty(t, store.created)
}

func TestRenew_AdvancesCycle(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, zap.NewNop())

	sub, err := svc.Activate(context.Background(), activateRequest())
	require.NoError(t, err)
	sub.MarkBillingFailure(time.Now(), "card declined")

	req := activateRequest()
	req.PurchaseID = 301
	req.BillingKey = "bill-key-002"
	req.NextBillingDate = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	renewed, err := svc.Renew(context.Background(), sub.ID, req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, renewed.Status)
	assert.Equal(t, int64(301), renewed.PurchaseID)
	assert.Equal(t, "bill-key-002", renewed.BillingKey)
	assert.Equal(t, 0, renewed.BillingRetryCount)
	assert.Equal(t, req.NextBillingDate, renewed.NextBillingDate.Time)
}

func TestRenew_UnknownSubscription(t *testing.T) {
	svc := NewService(newFakeStore(), zap.NewNop())

	_, err := svc.Renew(context.Background(), 42, activateRequest())
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestList_ClampsPaging(t *testing.T) {
	store := newFakeStore()
	_, err := NewService(store, zap.NewNop()).Activate(context.Background(), activateRequest())
	require.NoError(t, err)

	svc := NewService(store, zap.NewNop())
	result, err := svc.List(context.Background(), &domain.ListFilters{Page: 0, PageSize: 500})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.PageSize)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Subscriptions, 1)
	assert.Equal(t, domain.StatusActive, result.Subscriptions[0].Status)
}

func TestGet_NotFound(t *testing.T) {
	svc := NewService(newFakeStore(), zap.NewNop())

	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
