// internal/domain/settlement/entity.go
package settlement

import (
	"database/sql"
	"time"

	"groble-service/internal/pkg/fees"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Settlement aggregates a seller's settlement items for one period (month).
type Settlement struct {
	ID       int64 `json:"id" db:"id"`
	SellerID int64 `json:"seller_id" db:"seller_id"`

	// Settlement period, first day of month
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	// Aggregated from items
	TotalSalesAmount      int64 `json:"total_sales_amount" db:"total_sales_amount"`
	TotalPlatformFee      int64 `json:"total_platform_fee" db:"total_platform_fee"`
	TotalPgFee            int64 `json:"total_pg_fee" db:"total_pg_fee"`
	TotalVat              int64 `json:"total_vat" db:"total_vat"`
	TotalSettlementAmount int64 `json:"total_settlement_amount" db:"total_settlement_amount"`

	// Payout target account
	BankCode      string `json:"bank_code" db:"bank_code"`
	AccountNumber string `json:"-" db:"account_number"`
	AccountHolder string `json:"account_holder" db:"account_holder"`

	Status      Status         `json:"status" db:"status"`
	ApprovedAt  sql.NullTime   `json:"approved_at,omitempty" db:"approved_at"`
	PaidOutAt   sql.NullTime   `json:"paid_out_at,omitempty" db:"paid_out_at"`
	TransferID  sql.NullString `json:"transfer_id,omitempty" db:"transfer_id"`
	FailureNote sql.NullString `json:"failure_note,omitempty" db:"failure_note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Items []SettlementItem `json:"items,omitempty" db:"-"`
}

// SettlementItem captures one purchase's contribution to a settlement. The
// fee rates are snapshotted at build time so a later policy change cannot
// rewrite a historical settlement.
type SettlementItem struct {
	ID           int64 `json:"id" db:"id"`
	SettlementID int64 `json:"settlement_id" db:"settlement_id"`
	PurchaseID   int64 `json:"purchase_id" db:"purchase_id"`

	SalesAmount int64 `json:"sales_amount" db:"sales_amount"`

	// Rate snapshot
	PlatformFeeRate float64 `json:"platform_fee_rate" db:"platform_fee_rate"`
	PgFeeRate       float64 `json:"pg_fee_rate" db:"pg_fee_rate"`
	VatRate         float64 `json:"vat_rate" db:"vat_rate"`

	// Computed amounts
	PlatformFee      int64 `json:"platform_fee" db:"platform_fee"`
	PgFee            int64 `json:"pg_fee" db:"pg_fee"`
	Vat              int64 `json:"vat" db:"vat"`
	SettlementAmount int64 `json:"settlement_amount" db:"settlement_amount"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewItem assembles a settlement item for one purchase. The platform and PG
// fees come from the fee engine (each rounded half-up on its own); VAT is
// 10 percent nominal on the platform fee, added here and only here so it is
// never double counted with the engine's split. The item's settlement
// amount is the engine's settlement amount minus VAT.
func NewItem(purchaseID, salesAmount int64, platformFeeRate, pgFeeRate, vatRate float64) SettlementItem {
	b := fees.Calculate(salesAmount, &platformFeeRate, &pgFeeRate)
	vat := fees.FeeInWon(b.PlatformFee, &vatRate)

	return SettlementItem{
		PurchaseID:       purchaseID,
		SalesAmount:      salesAmount,
		PlatformFeeRate:  platformFeeRate,
		PgFeeRate:        pgFeeRate,
		VatRate:          vatRate,
		PlatformFee:      b.PlatformFee,
		PgFee:            b.PgFee,
		Vat:              vat,
		SettlementAmount: b.SettlementAmount - vat,
	}
}

// AddItem appends an item and folds it into the settlement totals.
func (s *Settlement) AddItem(item SettlementItem) {
	s.Items = append(s.Items, item)
	s.TotalSalesAmount += item.SalesAmount
	s.TotalPlatformFee += item.PlatformFee
	s.TotalPgFee += item.PgFee
	s.TotalVat += item.Vat
	s.TotalSettlementAmount += item.SettlementAmount
}

// Approvable reports whether an admin may approve this settlement for
// payout: it must be pending and carry something to pay.
func (s *Settlement) Approvable() bool {
	return s.Status == StatusPending && s.TotalSettlementAmount > 0
}

// PayoutReady reports whether the payout chain may start.
func (s *Settlement) PayoutReady() bool {
	return s.Status == StatusApproved
}
