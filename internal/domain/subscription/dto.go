// internal/domain/subscription/dto.go
package subscription

import (
	"database/sql"
	"time"
)

// ActivateRequest registers a new subscription from its first successful
// charge. The payment flow owns the charge itself; this request carries the
// resulting purchase snapshot and billing key.
type ActivateRequest struct {
	BuyerID         int64     `json:"buyer_id" binding:"required"`
	ContentID       int64     `json:"content_id" binding:"required"`
	PurchaseID      int64     `json:"purchase_id" binding:"required"`
	PaymentID       *int64    `json:"payment_id,omitempty"`
	OptionID        int64     `json:"option_id" binding:"required"`
	OptionName      string    `json:"option_name"`
	OptionPrice     int64     `json:"option_price" binding:"required"`
	BillingKey      string    `json:"billing_key" binding:"required"`
	NextBillingDate time.Time `json:"next_billing_date" binding:"required"`
}

// Params converts the request into constructor parameters.
func (r ActivateRequest) Params() NewParams {
	p := NewParams{
		BuyerID:         r.BuyerID,
		ContentID:       r.ContentID,
		PurchaseID:      r.PurchaseID,
		OptionID:        r.OptionID,
		OptionName:      r.OptionName,
		OptionPrice:     r.OptionPrice,
		BillingKey:      r.BillingKey,
		NextBillingDate: r.NextBillingDate,
	}
	if r.PaymentID != nil {
		p.PaymentID = sql.NullInt64{Int64: *r.PaymentID, Valid: true}
	}
	return p
}

// ResumeRequest reactivates a cancelled subscription.
type ResumeRequest struct {
	BillingKey      string    `json:"billing_key" binding:"required"`
	NextBillingDate time.Time `json:"next_billing_date" binding:"required"`
}

// CancelRequest cancels a subscription, optionally at a given instant.
type CancelRequest struct {
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

// ListFilters narrows subscription listings.
type ListFilters struct {
	Status   *Status `form:"status"`
	BuyerID  *int64  `form:"buyer_id"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// BillingView is the buyer-facing status projection: enough to render the
// subscription state and the most recent failure, nothing internal.
type BillingView struct {
	ID                int64      `json:"id"`
	Status            Status     `json:"status"`
	NextBillingDate   *time.Time `json:"next_billing_date,omitempty"`
	BillingRetryCount int        `json:"billing_retry_count"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`
	LastFailureReason string     `json:"last_failure_reason,omitempty"`
}

// View projects a subscription for API responses.
func (s *Subscription) View() BillingView {
	v := BillingView{
		ID:                s.ID,
		Status:            s.Status,
		BillingRetryCount: s.BillingRetryCount,
	}
	if s.NextBillingDate.Valid {
		t := s.NextBillingDate.Time
		v.NextBillingDate = &t
	}
	if s.GracePeriodEndsAt.Valid {
		t := s.GracePeriodEndsAt.Time
		v.GracePeriodEndsAt = &t
	}
	if s.LastFailureReason.Valid {
		v.LastFailureReason = s.LastFailureReason.String
	}
	return v
}
