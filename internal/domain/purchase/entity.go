// internal/domain/purchase/entity.go
package purchase

import (
	"database/sql"
	"time"
)

// Purchase is the settlement-facing slice of a completed order: who sold
// what for how much, and whether the money is still settleable.
type Purchase struct {
	ID         int64        `json:"id" db:"id"`
	SellerID   int64        `json:"seller_id" db:"seller_id"`
	BuyerID    int64        `json:"buyer_id" db:"buyer_id"`
	ContentID  int64        `json:"content_id" db:"content_id"`
	FinalPrice int64        `json:"final_price" db:"final_price"`
	PaidAt     time.Time    `json:"paid_at" db:"paid_at"`
	RefundedAt sql.NullTime `json:"refunded_at,omitempty" db:"refunded_at"`
}
