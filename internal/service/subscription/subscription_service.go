// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"fmt"
	"time"

	"groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Store is the persistence surface for subscription registration and the
// admin listing.
type Store interface {
	Create(ctx context.Context, sub *subscription.Subscription) error
	Save(ctx context.Context, sub *subscription.Subscription) error
	FindByID(ctx context.Context, id int64) (*subscription.Subscription, error)
	List(ctx context.Context, filters *subscription.ListFilters) ([]subscription.Subscription, int64, error)
	FindDue(ctx context.Context, today time.Time, limit int) ([]subscription.Subscription, error)
	ExistsActiveByBuyerAndContent(ctx context.Context, buyerID, contentID int64) (bool, error)
}

// Service registers subscriptions and exposes the admin-facing views.
// Recurring charges go through the billing service, which owns the state
// machine transitions.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ListResult pairs one page of views with the total row count.
type ListResult struct {
	Subscriptions []subscription.BillingView `json:"subscriptions"`
	Total         int64                      `json:"total"`
	Page          int                        `json:"page"`
	PageSize      int                        `json:"page_size"`
}

// Activate registers a subscription from a first successful charge. A buyer
// holds at most one live subscription per content; a second registration for
// the same pair is rejected before anything is written.
func (s *Service) Activate(ctx context.Context, req subscription.ActivateRequest) (*subscription.Subscription, error) {
	exists, err := s.store.ExistsActiveByBuyerAndContent(ctx, req.BuyerID, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: buyer %d already has a live subscription for content %d",
			xerrors.ErrConflict, req.BuyerID, req.ContentID)
	}

	sub, err := subscription.New(req.Params(), time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("subscription activated",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("buyer_id", sub.BuyerID),
		zap.Int64("content_id", sub.ContentID))
	return sub, nil
}

// Renew rolls an existing subscription onto a new cycle: the payment flow
// reports the renewal purchase and (possibly re-issued) billing key, and the
// subscription swaps its snapshot and advances the next billing date.
func (s *Service) Renew(ctx context.Context, id int64, req subscription.ActivateRequest) (*subscription.Subscription, error) {
	sub, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %d: %w", id, err)
	}

	if err := sub.Renew(req.Params(), time.Now()); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save renewed subscription: %w", err)
	}

	s.logger.Info("subscription renewed",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("purchase_id", sub.PurchaseID),
		zap.Time("next_billing_date", sub.NextBillingDate.Time))
	return sub, nil
}

// List returns a page of subscription billing views.
func (s *Service) List(ctx context.Context, filters *subscription.ListFilters) (*ListResult, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	subs, total, err := s.store.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	views := make([]subscription.BillingView, 0, len(subs))
	for i := range subs {
		views = append(views, subs[i].View())
	}

	return &ListResult{
		Subscriptions: views,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
	}, nil
}

// Get returns one subscription.
func (s *Service) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	return s.store.FindByID(ctx, id)
}
