// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	xerrors "groble-service/internal/pkg/errors"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// Subscription is one recurring billing relationship between a buyer and a
// purchased content option. It is created directly into active state by the
// first successful charge; there is no pending state. Cancellation is a
// status transition, rows are never deleted.
type Subscription struct {
	ID int64 `json:"id" db:"id"`

	// Related entities
	BuyerID   int64 `json:"buyer_id" db:"buyer_id"`
	ContentID int64 `json:"content_id" db:"content_id"`

	// Originating purchase/payment, swapped on every renewal
	PurchaseID int64         `json:"purchase_id" db:"purchase_id"`
	PaymentID  sql.NullInt64 `json:"payment_id,omitempty" db:"payment_id"`

	// Purchased option snapshot
	OptionID    int64  `json:"option_id" db:"option_id"`
	OptionName  string `json:"option_name" db:"option_name"`
	OptionPrice int64  `json:"option_price" db:"option_price"`

	// Billing
	BillingKey      string       `json:"-" db:"billing_key"`
	NextBillingDate sql.NullTime `json:"next_billing_date,omitempty" db:"next_billing_date"`

	// Status
	Status      Status       `json:"status" db:"status"`
	ActivatedAt time.Time    `json:"activated_at" db:"activated_at"`
	CancelledAt sql.NullTime `json:"cancelled_at,omitempty" db:"cancelled_at"`

	// Billing attempt bookkeeping
	LastBillingAttemptAt   sql.NullTime   `json:"last_billing_attempt_at,omitempty" db:"last_billing_attempt_at"`
	LastBillingSucceededAt sql.NullTime   `json:"last_billing_succeeded_at,omitempty" db:"last_billing_succeeded_at"`
	BillingRetryCount      int            `json:"billing_retry_count" db:"billing_retry_count"`
	GracePeriodEndsAt      sql.NullTime   `json:"grace_period_ends_at,omitempty" db:"grace_period_ends_at"`
	LastFailureReason      sql.NullString `json:"last_failure_reason,omitempty" db:"last_failure_reason"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewParams carries the fields required to create or renew a subscription.
type NewParams struct {
	BuyerID         int64
	ContentID       int64
	PurchaseID      int64
	PaymentID       sql.NullInt64
	OptionID        int64
	OptionName      string
	OptionPrice     int64
	BillingKey      string
	NextBillingDate time.Time
}

func (p NewParams) validate() error {
	if p.BuyerID <= 0 {
		return fmt.Errorf("%w: buyer is required", xerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(p.BillingKey) == "" {
		return fmt.Errorf("%w: billing key is required", xerrors.ErrInvalidInput)
	}
	if p.NextBillingDate.IsZero() {
		return fmt.Errorf("%w: next billing date is required", xerrors.ErrInvalidInput)
	}
	return nil
}

// New creates a subscription from a first successful charge. The new
// subscription is active with a zero retry count and the attempt/success
// timestamps seeded to now.
func New(p NewParams, now time.Time) (*Subscription, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	return &Subscription{
		BuyerID:                p.BuyerID,
		ContentID:              p.ContentID,
		PurchaseID:             p.PurchaseID,
		PaymentID:              p.PaymentID,
		OptionID:               p.OptionID,
		OptionName:             p.OptionName,
		OptionPrice:            p.OptionPrice,
		BillingKey:             p.BillingKey,
		NextBillingDate:        sql.NullTime{Time: p.NextBillingDate, Valid: true},
		Status:                 StatusActive,
		ActivatedAt:            now,
		LastBillingAttemptAt:   sql.NullTime{Time: now, Valid: true},
		LastBillingSucceededAt: sql.NullTime{Time: now, Valid: true},
		BillingRetryCount:      0,
	}, nil
}

// MarkBillingSuccess records a successful charge: back to active, retry
// count and failure reason reset, grace period cleared. Safe to call twice.
func (s *Subscription) MarkBillingSuccess(now time.Time) {
	s.Status = StatusActive
	s.BillingRetryCount = 0
	s.LastFailureReason = sql.NullString{}
	s.GracePeriodEndsAt = sql.NullTime{}
	s.LastBillingAttemptAt = sql.NullTime{Time: now, Valid: true}
	s.LastBillingSucceededAt = sql.NullTime{Time: now, Valid: true}
}

// MarkBillingFailure records a declined charge. The subscription drops to
// past-due and the retry count grows; a cancelled subscription is left
// untouched. An empty reason is allowed.
func (s *Subscription) MarkBillingFailure(now time.Time, reason string) {
	if s.Status == StatusCancelled {
		return
	}

	s.Status = StatusPastDue
	s.BillingRetryCount++
	s.LastBillingAttemptAt = sql.NullTime{Time: now, Valid: true}
	s.LastFailureReason = sql.NullString{String: reason, Valid: reason != ""}
}

// Renew applies a successful scheduled recharge: the purchase, payment,
// option snapshot and billing key are swapped for the new cycle's values,
// the next billing date advances and any pending cancellation mark is
// cleared. Success bookkeeping follows MarkBillingSuccess.
func (s *Subscription) Renew(p NewParams, now time.Time) error {
	if err := p.validate(); err != nil {
		return err
	}

	s.PurchaseID = p.PurchaseID
	s.PaymentID = p.PaymentID
	s.OptionID = p.OptionID
	s.OptionName = p.OptionName
	s.OptionPrice = p.OptionPrice
	s.BillingKey = p.BillingKey
	s.NextBillingDate = sql.NullTime{Time: p.NextBillingDate, Valid: true}
	s.CancelledAt = sql.NullTime{}
	s.MarkBillingSuccess(now)
	return nil
}

// MarkCancelled moves the subscription to its terminal state. A zero `at`
// defaults to now. Only Resume can leave the cancelled state.
func (s *Subscription) MarkCancelled(at, now time.Time) {
	if at.IsZero() {
		at = now
	}

	s.Status = StatusCancelled
	s.CancelledAt = sql.NullTime{Time: at, Valid: true}
	s.BillingRetryCount = 0
	s.GracePeriodEndsAt = sql.NullTime{}
}

// Resume reactivates a cancelled subscription with a fresh billing key and
// next billing date. Called on anything but a cancelled subscription, or
// with a blank key or zero date, it rejects the request.
func (s *Subscription) Resume(billingKey string, nextBillingDate, now time.Time) error {
	if s.Status != StatusCancelled {
		return fmt.Errorf("%w: only a cancelled subscription can be resumed", xerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(billingKey) == "" {
		return fmt.Errorf("%w: billing key is required to resume", xerrors.ErrInvalidInput)
	}
	if nextBillingDate.IsZero() {
		return fmt.Errorf("%w: next billing date is required to resume", xerrors.ErrInvalidInput)
	}

	s.Status = StatusActive
	s.BillingKey = billingKey
	s.NextBillingDate = sql.NullTime{Time: nextBillingDate, Valid: true}
	s.CancelledAt = sql.NullTime{}
	s.BillingRetryCount = 0
	s.LastBillingAttemptAt = sql.NullTime{}
	s.GracePeriodEndsAt = sql.NullTime{}
	return nil
}

// StartGracePeriod opens a grace window of `days` days from now.
func (s *Subscription) StartGracePeriod(now time.Time, days int) {
	s.GracePeriodEndsAt = sql.NullTime{Time: now.AddDate(0, 0, days), Valid: true}
}

// IsGracePeriodActive reports whether now is still inside the grace window.
func (s *Subscription) IsGracePeriodActive(now time.Time) bool {
	if !s.GracePeriodEndsAt.Valid {
		return false
	}
	return !now.After(s.GracePeriodEndsAt.Time)
}

// ClearGracePeriod drops the grace window.
func (s *Subscription) ClearGracePeriod() {
	s.GracePeriodEndsAt = sql.NullTime{}
}

// CanAttemptBilling decides whether a charge may be attempted. The
// subscription must not be cancelled and its next billing date must be due
// relative to today. retryIntervalMinutes keeps a minimum spacing between
// attempts within the same due period so a scheduler tick cannot hammer the
// payment gateway; with no prior attempt or a non-positive interval the
// subscription is eligible immediately. This is an advisory throttle, not a
// lock; callers serialize per-subscription billing themselves.
func (s *Subscription) CanAttemptBilling(today, now time.Time, retryIntervalMinutes int) bool {
	if s.Status == StatusCancelled {
		return false
	}
	if !s.NextBillingDate.Valid || s.NextBillingDate.Time.After(today) {
		return false
	}
	if !s.LastBillingAttemptAt.Valid || retryIntervalMinutes <= 0 {
		return true
	}

	elapsed := now.Sub(s.LastBillingAttemptAt.Time)
	return elapsed >= time.Duration(retryIntervalMinutes)*time.Minute
}
