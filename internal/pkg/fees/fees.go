// internal/pkg/fees/fees.go
package fees

import "math"

// Breakdown is the result of splitting a sales amount into fees and the
// net settlement amount. All values are whole KRW.
type Breakdown struct {
	SalesAmount      int64 `json:"sales_amount"`
	PlatformFee      int64 `json:"platform_fee"`
	PgFee            int64 `json:"pg_fee"`
	TotalFee         int64 `json:"total_fee"`
	SettlementAmount int64 `json:"settlement_amount"`
}

// FeeInWon computes amount * rate rounded half-up to a whole won.
// A nil rate means "no fee configured" and yields 0 rather than an error.
func FeeInWon(amount int64, rate *float64) int64 {
	if amount == 0 || rate == nil {
		return 0
	}
	return roundHalfUp(float64(amount) * (*rate))
}

// Calculate splits salesAmount into platform fee, PG fee and the remaining
// settlement amount. Each fee is rounded half-up independently before the
// fees are summed; rounding once on the total would drift depending on
// computation order. SettlementAmount is derived by subtraction, so
// PlatformFee + PgFee + SettlementAmount always equals SalesAmount.
//
// No bound checks are performed here; callers guarantee a non-negative
// sales amount. VAT is not part of this split, the settlement item
// assembly adds it on top of the platform fee.
func Calculate(salesAmount int64, platformFeeRate, pgFeeRate *float64) Breakdown {
	platformFee := FeeInWon(salesAmount, platformFeeRate)
	pgFee := FeeInWon(salesAmount, pgFeeRate)
	totalFee := platformFee + pgFee

	return Breakdown{
		SalesAmount:      salesAmount,
		PlatformFee:      platformFee,
		PgFee:            pgFee,
		TotalFee:         totalFee,
		SettlementAmount: salesAmount - totalFee,
	}
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
