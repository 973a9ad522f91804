// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, buyer_id, content_id, purchase_id, payment_id,
	option_id, option_name, option_price,
	billing_key, next_billing_date,
	status, activated_at, cancelled_at,
	last_billing_attempt_at, last_billing_succeeded_at,
	billing_retry_count, grace_period_ends_at, last_failure_reason,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := row.Scan(
		&sub.ID, &sub.BuyerID, &sub.ContentID, &sub.PurchaseID, &sub.PaymentID,
		&sub.OptionID, &sub.OptionName, &sub.OptionPrice,
		&sub.BillingKey, &sub.NextBillingDate,
		&sub.Status, &sub.ActivatedAt, &sub.CancelledAt,
		&sub.LastBillingAttemptAt, &sub.LastBillingSucceededAt,
		&sub.BillingRetryCount, &sub.GracePeriodEndsAt, &sub.LastFailureReason,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create inserts a new subscription created by a first successful charge.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			buyer_id, content_id, purchase_id, payment_id,
			option_id, option_name, option_price,
			billing_key, next_billing_date,
			status, activated_at,
			last_billing_attempt_at, last_billing_succeeded_at,
			billing_retry_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		sub.BuyerID, sub.ContentID, sub.PurchaseID, sub.PaymentID,
		sub.OptionID, sub.OptionName, sub.OptionPrice,
		sub.BillingKey, sub.NextBillingDate,
		sub.Status, sub.ActivatedAt,
		sub.LastBillingAttemptAt, sub.LastBillingSucceededAt,
		sub.BillingRetryCount,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	return sub, nil
}

// Save persists the full mutable state of a subscription after the state
// machine has been applied in memory. No dirty checking; callers save
// explicitly after mutation.
func (r *SubscriptionRepository) Save(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions
		SET purchase_id = $1, payment_id = $2,
		    option_id = $3, option_name = $4, option_price = $5,
		    billing_key = $6, next_billing_date = $7,
		    status = $8, cancelled_at = $9,
		    last_billing_attempt_at = $10, last_billing_succeeded_at = $11,
		    billing_retry_count = $12, grace_period_ends_at = $13, last_failure_reason = $14,
		    updated_at = $15
		WHERE id = $16
	`

	result, err := r.db.Exec(
		ctx, query,
		sub.PurchaseID, sub.PaymentID,
		sub.OptionID, sub.OptionName, sub.OptionPrice,
		sub.BillingKey, sub.NextBillingDate,
		sub.Status, sub.CancelledAt,
		sub.LastBillingAttemptAt, sub.LastBillingSucceededAt,
		sub.BillingRetryCount, sub.GracePeriodEndsAt, sub.LastFailureReason,
		time.Now(), sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// FindDue retrieves subscriptions whose next billing date is on or before
// today and which are not cancelled, oldest due first.
func (r *SubscriptionRepository) FindDue(ctx context.Context, today time.Time, limit int) ([]subscription.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status != 'cancelled'
		  AND next_billing_date IS NOT NULL
		  AND next_billing_date <= $1
		ORDER BY next_billing_date ASC
		LIMIT $2
	`, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, today, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, nil
}

// List retrieves subscriptions with filters
func (r *SubscriptionRepository) List(ctx context.Context, filters *subscription.ListFilters) ([]subscription.Subscription, int64, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	if filters.BuyerID != nil {
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argPos))
		args = append(args, *filters.BuyerID)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM subscriptions WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, subscriptionColumns, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, total, nil
}

// ExistsActiveByBuyerAndContent checks whether the buyer already has a
// non-cancelled subscription on the content.
func (r *SubscriptionRepository) ExistsActiveByBuyerAndContent(ctx context.Context, buyerID, contentID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE buyer_id = $1 AND content_id = $2 AND status != 'cancelled'
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, buyerID, contentID).Scan(&exists)
	return exists, err
}
