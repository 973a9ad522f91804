// internal/domain/feepolicy/dto.go
package feepolicy

import (
	"database/sql"
	"fmt"
	"time"

	xerrors "groble-service/internal/pkg/errors"
)

// CreateRequest inserts a new policy row. Existing rows are never updated;
// the new row supersedes older ones from its effective_from onward.
type CreateRequest struct {
	ScopeType       ScopeType  `json:"scope_type" binding:"required"`
	ScopeRefID      *int64     `json:"scope_ref_id,omitempty"`
	PlatformFeeRate float64    `json:"platform_fee_rate"`
	PgFeeRate       float64    `json:"pg_fee_rate"`
	VatRate         float64    `json:"vat_rate"`
	EffectiveFrom   time.Time  `json:"effective_from" binding:"required"`
	EffectiveTo     *time.Time `json:"effective_to,omitempty"`
}

// ToPolicy validates the request and builds the policy row.
func (r CreateRequest) ToPolicy() (*FeePolicy, error) {
	switch r.ScopeType {
	case ScopeGlobal:
		if r.ScopeRefID != nil {
			return nil, fmt.Errorf("%w: a global policy cannot carry a scope ref", xerrors.ErrInvalidInput)
		}
	case ScopeMaker:
		if r.ScopeRefID == nil || *r.ScopeRefID <= 0 {
			return nil, fmt.Errorf("%w: a maker policy requires a scope ref", xerrors.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown scope type %q", xerrors.ErrInvalidInput, r.ScopeType)
	}

	for _, rate := range []float64{r.PlatformFeeRate, r.PgFeeRate, r.VatRate} {
		if rate < 0 || rate >= 1 {
			return nil, fmt.Errorf("%w: rates must be fractions in [0, 1)", xerrors.ErrInvalidInput)
		}
	}

	if r.EffectiveFrom.IsZero() {
		return nil, fmt.Errorf("%w: effective_from is required", xerrors.ErrInvalidInput)
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(r.EffectiveFrom) {
		return nil, fmt.Errorf("%w: effective_to must be after effective_from", xerrors.ErrInvalidInput)
	}

	p := &FeePolicy{
		ScopeType:       r.ScopeType,
		PlatformFeeRate: r.PlatformFeeRate,
		PgFeeRate:       r.PgFeeRate,
		VatRate:         r.VatRate,
		EffectiveFrom:   r.EffectiveFrom,
	}
	if r.ScopeRefID != nil {
		p.ScopeRefID = sql.NullInt64{Int64: *r.ScopeRefID, Valid: true}
	}
	if r.EffectiveTo != nil {
		p.EffectiveTo = sql.NullTime{Time: *r.EffectiveTo, Valid: true}
	}
	return p, nil
}
