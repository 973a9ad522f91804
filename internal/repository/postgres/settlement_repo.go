// internal/repository/postgres/settlement_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"groble-service/internal/domain/purchase"
	"groble-service/internal/domain/settlement"
	xerrors "groble-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type SettlementRepository struct {
	db *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{db: db}
}

const settlementColumns = `
	id, seller_id, period_start, period_end,
	total_sales_amount, total_platform_fee, total_pg_fee, total_vat, total_settlement_amount,
	bank_code, account_number, account_holder,
	status, approved_at, paid_out_at, transfer_id, failure_note,
	created_at, updated_at`

func scanSettlement(row pgx.Row) (*settlement.Settlement, error) {
	var s settlement.Settlement
	err := row.Scan(
		&s.ID, &s.SellerID, &s.PeriodStart, &s.PeriodEnd,
		&s.TotalSalesAmount, &s.TotalPlatformFee, &s.TotalPgFee, &s.TotalVat, &s.TotalSettlementAmount,
		&s.BankCode, &s.AccountNumber, &s.AccountHolder,
		&s.Status, &s.ApprovedAt, &s.PaidOutAt, &s.TransferID, &s.FailureNote,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateWithItemsTx inserts a settlement and its items inside one
// transaction. The unique index on settlement_items.purchase_id is the
// hard guarantee that a purchase settles at most once.
func (r *SettlementRepository) CreateWithItemsTx(ctx context.Context, tx pgx.Tx, s *settlement.Settlement) error {
	query := `
		INSERT INTO settlements (
			seller_id, period_start, period_end,
			total_sales_amount, total_platform_fee, total_pg_fee, total_vat, total_settlement_amount,
			bank_code, account_number, account_holder, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx, query,
		s.SellerID, s.PeriodStart, s.PeriodEnd,
		s.TotalSalesAmount, s.TotalPlatformFee, s.TotalPgFee, s.TotalVat, s.TotalSettlementAmount,
		s.BankCode, s.AccountNumber, s.AccountHolder, s.Status,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	itemQuery := `
		INSERT INTO settlement_items (
			settlement_id, purchase_id, sales_amount,
			platform_fee_rate, pg_fee_rate, vat_rate,
			platform_fee, pg_fee, vat, settlement_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	for i := range s.Items {
		item := &s.Items[i]
		item.SettlementID = s.ID

		err := tx.QueryRow(
			ctx, itemQuery,
			item.SettlementID, item.PurchaseID, item.SalesAmount,
			item.PlatformFeeRate, item.PgFeeRate, item.VatRate,
			item.PlatformFee, item.PgFee, item.Vat, item.SettlementAmount,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create settlement item for purchase %d: %w", item.PurchaseID, err)
		}
	}

	return nil
}

// FindByID retrieves a settlement with its items.
func (r *SettlementRepository) FindByID(ctx context.Context, id int64) (*settlement.Settlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements WHERE id = $1`, settlementColumns)

	s, err := scanSettlement(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find settlement: %w", err)
	}

	items, err := r.findItems(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Items = items

	return s, nil
}

// FindByIDs retrieves settlements for an explicit id list, without items.
func (r *SettlementRepository) FindByIDs(ctx context.Context, ids []int64) ([]settlement.Settlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements WHERE id = ANY($1) ORDER BY id`, settlementColumns)

	rows, err := r.db.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to find settlements: %w", err)
	}
	defer rows.Close()

	settlements := []settlement.Settlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, *s)
	}

	return settlements, nil
}

func (r *SettlementRepository) findItems(ctx context.Context, settlementID int64) ([]settlement.SettlementItem, error) {
	query := `
		SELECT id, settlement_id, purchase_id, sales_amount,
		       platform_fee_rate, pg_fee_rate, vat_rate,
		       platform_fee, pg_fee, vat, settlement_amount, created_at
		FROM settlement_items
		WHERE settlement_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to find settlement items: %w", err)
	}
	defer rows.Close()

	items := []settlement.SettlementItem{}
	for rows.Next() {
		var item settlement.SettlementItem
		err := rows.Scan(
			&item.ID, &item.SettlementID, &item.PurchaseID, &item.SalesAmount,
			&item.PlatformFeeRate, &item.PgFeeRate, &item.VatRate,
			&item.PlatformFee, &item.PgFee, &item.Vat, &item.SettlementAmount, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement item: %w", err)
		}
		items = append(items, item)
	}

	return items, nil
}

// List retrieves settlement summaries with filters.
func (r *SettlementRepository) List(ctx context.Context, filters *settlement.ListFilters) ([]settlement.Summary, int64, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filters.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf("s.seller_id = $%d", argPos))
		args = append(args, *filters.SellerID)
		argPos++
	}

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM settlements s WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.seller_id, s.period_start, s.period_end,
		       s.total_sales_amount, s.total_settlement_amount, s.status,
		       (SELECT COUNT(*) FROM settlement_items i WHERE i.settlement_id = s.id) AS item_count
		FROM settlements s
		WHERE %s
		ORDER BY s.period_start DESC, s.id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	summaries := []settlement.Summary{}
	for rows.Next() {
		var s settlement.Summary
		err := rows.Scan(
			&s.ID, &s.SellerID, &s.PeriodStart, &s.PeriodEnd,
			&s.TotalSalesAmount, &s.TotalSettlementAmount, &s.Status, &s.ItemCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan settlement summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, total, nil
}

// ExistsByPurchaseID checks if a purchase is already part of a settlement.
func (r *SettlementRepository) ExistsByPurchaseID(ctx context.Context, purchaseID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM settlement_items WHERE purchase_id = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, purchaseID).Scan(&exists)
	return exists, err
}

// FindSettleablePurchases retrieves a seller's paid, unrefunded purchases
// in the period that are not yet part of any settlement.
func (r *SettlementRepository) FindSettleablePurchases(ctx context.Context, sellerID int64, periodStart, periodEnd time.Time) ([]purchase.Purchase, error) {
	query := `
		SELECT p.id, p.seller_id, p.buyer_id, p.content_id, p.final_price, p.paid_at, p.refunded_at
		FROM purchases p
		WHERE p.seller_id = $1
		  AND p.paid_at >= $2 AND p.paid_at < $3
		  AND p.refunded_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM settlement_items i WHERE i.purchase_id = p.id)
		ORDER BY p.paid_at ASC
	`

	rows, err := r.db.Query(ctx, query, sellerID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find settleable purchases: %w", err)
	}
	defer rows.Close()

	purchases := []purchase.Purchase{}
	for rows.Next() {
		var p purchase.Purchase
		err := rows.Scan(&p.ID, &p.SellerID, &p.BuyerID, &p.ContentID, &p.FinalPrice, &p.PaidAt, &p.RefundedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	return purchases, nil
}

// MarkApproved moves a pending settlement to approved.
func (r *SettlementRepository) MarkApproved(ctx context.Context, id int64, now time.Time) error {
	query := `
		UPDATE settlements
		SET status = $1, approved_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, settlement.StatusApproved, now, id, settlement.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to approve settlement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// MarkProcessing claims an approved settlement for a payout run. The
// status guard makes the claim exclusive: only one runner can move a given
// settlement from approved to processing.
func (r *SettlementRepository) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE settlements
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, settlement.StatusProcessing, time.Now(), id, settlement.StatusApproved)
	if err != nil {
		return fmt.Errorf("failed to mark settlement processing: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// MarkCompleted records a confirmed payout.
func (r *SettlementRepository) MarkCompleted(ctx context.Context, id int64, transferID string, now time.Time) error {
	query := `
		UPDATE settlements
		SET status = $1, transfer_id = $2, paid_out_at = $3, failure_note = NULL, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.Exec(ctx, query, settlement.StatusCompleted, transferID, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark settlement completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// MarkFailed records a failed payout with the step context an operator
// needs to resume from the right place.
func (r *SettlementRepository) MarkFailed(ctx context.Context, id int64, note string) error {
	query := `
		UPDATE settlements
		SET status = $1, failure_note = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.Exec(ctx, query, settlement.StatusFailed, note, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark settlement failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// FindApprovedIDs returns approved settlements awaiting payout, used by
// the scheduled payout run.
func (r *SettlementRepository) FindApprovedIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id FROM settlements
		WHERE status = $1
		ORDER BY approved_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, settlement.StatusApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find approved settlements: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan settlement id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
