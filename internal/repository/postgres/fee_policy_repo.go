// internal/repository/postgres/fee_policy_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groble-service/internal/domain/feepolicy"
	xerrors "groble-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FeePolicyRepository struct {
	db *pgxpool.Pool
}

func NewFeePolicyRepository(db *pgxpool.Pool) *FeePolicyRepository {
	return &FeePolicyRepository{db: db}
}

// Create inserts a new policy row. Policies are immutable; there is no
// update path, a newer row supersedes older ones.
func (r *FeePolicyRepository) Create(ctx context.Context, p *feepolicy.FeePolicy) error {
	query := `
		INSERT INTO fee_policies (
			scope_type, scope_ref_id,
			platform_fee_rate, pg_fee_rate, vat_rate,
			effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.ScopeType, p.ScopeRefID,
		p.PlatformFeeRate, p.PgFeeRate, p.VatRate,
		p.EffectiveFrom, p.EffectiveTo,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create fee policy: %w", err)
	}

	return nil
}

// FindEffective resolves the applicable policy for a scope at an instant:
// the most recent row whose window contains it.
func (r *FeePolicyRepository) FindEffective(ctx context.Context, scopeType feepolicy.ScopeType, scopeRefID sql.NullInt64, at time.Time) (*feepolicy.FeePolicy, error) {
	query := `
		SELECT id, scope_type, scope_ref_id,
		       platform_fee_rate, pg_fee_rate, vat_rate,
		       effective_from, effective_to, created_at
		FROM fee_policies
		WHERE scope_type = $1
		  AND (scope_ref_id = $2 OR ($2 IS NULL AND scope_ref_id IS NULL))
		  AND effective_from <= $3
		  AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var p feepolicy.FeePolicy
	err := r.db.QueryRow(ctx, query, scopeType, scopeRefID, at).Scan(
		&p.ID, &p.ScopeType, &p.ScopeRefID,
		&p.PlatformFeeRate, &p.PgFeeRate, &p.VatRate,
		&p.EffectiveFrom, &p.EffectiveTo, &p.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find effective fee policy: %w", err)
	}

	return &p, nil
}

// ListByScope retrieves all policy rows for a scope, newest first.
func (r *FeePolicyRepository) ListByScope(ctx context.Context, scopeType feepolicy.ScopeType, scopeRefID sql.NullInt64) ([]feepolicy.FeePolicy, error) {
	query := `
		SELECT id, scope_type, scope_ref_id,
		       platform_fee_rate, pg_fee_rate, vat_rate,
		       effective_from, effective_to, created_at
		FROM fee_policies
		WHERE scope_type = $1
		  AND (scope_ref_id = $2 OR ($2 IS NULL AND scope_ref_id IS NULL))
		ORDER BY effective_from DESC
	`

	rows, err := r.db.Query(ctx, query, scopeType, scopeRefID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee policies: %w", err)
	}
	defer rows.Close()

	policies := []feepolicy.FeePolicy{}
	for rows.Next() {
		var p feepolicy.FeePolicy
		err := rows.Scan(
			&p.ID, &p.ScopeType, &p.ScopeRefID,
			&p.PlatformFeeRate, &p.PgFeeRate, &p.VatRate,
			&p.EffectiveFrom, &p.EffectiveTo, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee policy: %w", err)
		}
		policies = append(policies, p)
	}

	return policies, nil
}
