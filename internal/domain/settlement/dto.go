// internal/domain/settlement/dto.go
package settlement

import "time"

// BuildRequest creates a settlement for a seller over one month.
type BuildRequest struct {
	SellerID int64     `json:"seller_id" binding:"required"`
	Period   time.Time `json:"period" binding:"required"` // any instant inside the month
}

// ApproveRequest approves settlements for payout; ExecuteNow additionally
// runs the PG payout chain immediately instead of waiting for the
// scheduled run.
type ApproveRequest struct {
	SettlementIDs []int64 `json:"settlement_ids" binding:"required"`
	ExecuteNow    bool    `json:"execute_now"`
}

// ListFilters narrows settlement listings.
type ListFilters struct {
	SellerID *int64  `form:"seller_id"`
	Status   *Status `form:"status"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// Summary is the admin list projection.
type Summary struct {
	ID                    int64     `json:"id"`
	SellerID              int64     `json:"seller_id"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	TotalSalesAmount      int64     `json:"total_sales_amount"`
	TotalSettlementAmount int64     `json:"total_settlement_amount"`
	Status                Status    `json:"status"`
	ItemCount             int       `json:"item_count"`
}
