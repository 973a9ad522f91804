// internal/repository/postgres/payout_attempt_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	xerrors "groble-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PayoutAttempt is one transfer-execution request sent to the PG. The
// group key doubles as the correlation id for webhook confirmation.
type PayoutAttempt struct {
	ID           int64     `db:"id"`
	SettlementID int64     `db:"settlement_id"`
	Reference    string    `db:"reference"`
	GroupKey     string    `db:"group_key"`
	Amount       int64     `db:"amount"`
	Status       string    `db:"status"` // requested, confirmed, failed
	TransferID   string    `db:"transfer_id"`
	ConfirmedAt  time.Time `db:"confirmed_at"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PayoutAttemptRequested = "requested"
	PayoutAttemptConfirmed = "confirmed"
	PayoutAttemptFailed    = "failed"
)

type PayoutAttemptRepository struct {
	db *pgxpool.Pool
}

func NewPayoutAttemptRepository(db *pgxpool.Pool) *PayoutAttemptRepository {
	return &PayoutAttemptRepository{db: db}
}

// Create records a transfer-execution request before it is sent.
func (r *PayoutAttemptRepository) Create(ctx context.Context, a *PayoutAttempt) error {
	query := `
		INSERT INTO payout_attempts (settlement_id, reference, group_key, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		a.SettlementID, a.Reference, a.GroupKey, a.Amount, PayoutAttemptRequested,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout attempt: %w", err)
	}

	return nil
}

// FindByGroupKey resolves the attempt a webhook refers to.
func (r *PayoutAttemptRepository) FindByGroupKey(ctx context.Context, groupKey string) (*PayoutAttempt, error) {
	query := `
		SELECT id, settlement_id, reference, group_key, amount, status,
		       COALESCE(transfer_id, ''), COALESCE(confirmed_at, 'epoch'::timestamptz), created_at
		FROM payout_attempts
		WHERE group_key = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var a PayoutAttempt
	err := r.db.QueryRow(ctx, query, groupKey).Scan(
		&a.ID, &a.SettlementID, &a.Reference, &a.GroupKey, &a.Amount, &a.Status,
		&a.TransferID, &a.ConfirmedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payout attempt: %w", err)
	}

	return &a, nil
}

// Settle moves an attempt out of the requested state exactly once. The
// status guard makes confirmation idempotent: a second webhook (or a
// webhook racing the synchronous response) finds no requested row and
// applies nothing.
func (r *PayoutAttemptRepository) Settle(ctx context.Context, id int64, status, transferID string, at time.Time) (bool, error) {
	query := `
		UPDATE payout_attempts
		SET status = $1, transfer_id = $2, confirmed_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.Exec(ctx, query, status, transferID, at, id, PayoutAttemptRequested)
	if err != nil {
		return false, fmt.Errorf("failed to settle payout attempt: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
