// internal/domain/feepolicy/entity.go
package feepolicy

import (
	"database/sql"
	"time"
)

type ScopeType string

const (
	ScopeGlobal ScopeType = "global"
	ScopeMaker  ScopeType = "maker"
)

// FeePolicy is a scoped, time-windowed rate configuration. Rows are
// immutable once created; a rate change is a new row with a later
// effective_from, and the most recent policy whose window contains the
// instant wins.
type FeePolicy struct {
	ID int64 `json:"id" db:"id"`

	ScopeType  ScopeType     `json:"scope_type" db:"scope_type"`
	ScopeRefID sql.NullInt64 `json:"scope_ref_id,omitempty" db:"scope_ref_id"`

	PlatformFeeRate float64 `json:"platform_fee_rate" db:"platform_fee_rate"`
	PgFeeRate       float64 `json:"pg_fee_rate" db:"pg_fee_rate"`
	VatRate         float64 `json:"vat_rate" db:"vat_rate"`

	EffectiveFrom time.Time    `json:"effective_from" db:"effective_from"`
	EffectiveTo   sql.NullTime `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Covers reports whether the policy window contains the instant.
func (p *FeePolicy) Covers(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo.Valid && at.After(p.EffectiveTo.Time) {
		return false
	}
	return true
}
