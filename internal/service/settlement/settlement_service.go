// internal/service/settlement/settlement_service.go
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groble-service/internal/domain/feepolicy"
	"groble-service/internal/domain/purchase"
	domain "groble-service/internal/domain/settlement"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/service/payout"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Store is the settlement persistence surface.
type Store interface {
	CreateWithItemsTx(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error
	FindByID(ctx context.Context, id int64) (*domain.Settlement, error)
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Settlement, error)
	List(ctx context.Context, filters *domain.ListFilters) ([]domain.Summary, int64, error)
	FindSettleablePurchases(ctx context.Context, sellerID int64, periodStart, periodEnd time.Time) ([]purchase.Purchase, error)
	MarkApproved(ctx context.Context, id int64, now time.Time) error
}

// PolicyStore resolves the fee policy effective for a seller at a point
// in time.
type PolicyStore interface {
	FindEffective(ctx context.Context, scopeType feepolicy.ScopeType, scopeRefID sql.NullInt64, at time.Time) (*feepolicy.FeePolicy, error)
	Create(ctx context.Context, p *feepolicy.FeePolicy) error
	ListByScope(ctx context.Context, scopeType feepolicy.ScopeType, scopeRefID sql.NullInt64) ([]feepolicy.FeePolicy, error)
}

// PayoutRunner lets an approval with execute_now hand off to the payout
// chain without the settlement service knowing the PG protocol.
type PayoutRunner interface {
	ExecutePayouts(ctx context.Context, ids []int64) ([]payout.Result, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type Service struct {
	db       TxRunner
	store    Store
	policies PolicyStore
	payouts  PayoutRunner
	logger   *zap.Logger
}

func NewService(db TxRunner, store Store, policies PolicyStore, payouts PayoutRunner, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		store:    store,
		policies: policies,
		payouts:  payouts,
		logger:   logger,
	}
}

// BuildMonthlySettlement assembles a settlement for one seller over the
// month containing req.Period. Each purchase becomes one item with the
// rates effective at its paid time frozen in, so a later policy change
// never rewrites this settlement. Purchases already claimed by another
// settlement are excluded by the item lookup itself.
func (s *Service) BuildMonthlySettlement(ctx context.Context, req domain.BuildRequest, bank BankAccount) (*domain.Settlement, error) {
	if req.SellerID <= 0 {
		return nil, fmt.Errorf("%w: seller is required", xerrors.ErrInvalidInput)
	}
	if req.Period.IsZero() {
		return nil, fmt.Errorf("%w: settlement period is required", xerrors.ErrInvalidInput)
	}
	if err := bank.validate(); err != nil {
		return nil, err
	}

	periodStart := time.Date(req.Period.Year(), req.Period.Month(), 1, 0, 0, 0, 0, req.Period.Location())
	periodEnd := periodStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	purchases, err := s.store.FindSettleablePurchases(ctx, req.SellerID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load settleable purchases: %w", err)
	}
	if len(purchases) == 0 {
		return nil, fmt.Errorf("%w: no settleable purchases in period", xerrors.ErrNotFound)
	}

	stl := &domain.Settlement{
		SellerID:      req.SellerID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		BankCode:      bank.BankCode,
		AccountNumber: bank.AccountNumber,
		AccountHolder: bank.AccountHolder,
		Status:        domain.StatusPending,
	}

	for _, p := range purchases {
		policy, err := s.effectivePolicy(ctx, req.SellerID, p.PaidAt)
		if err != nil {
			return nil, err
		}

		item := domain.NewItem(p.ID, p.FinalPrice, policy.PlatformFeeRate, policy.PgFeeRate, policy.VatRate)
		stl.AddItem(item)
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.CreateWithItemsTx(ctx, tx, stl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist settlement: %w", err)
	}

	s.logger.Info("settlement built",
		zap.Int64("settlement_id", stl.ID),
		zap.Int64("seller_id", req.SellerID),
		zap.Time("period_start", periodStart),
		zap.Int("items", len(stl.Items)),
		zap.Int64("total_settlement_amount", stl.TotalSettlementAmount),
	)
	return stl, nil
}

// effectivePolicy resolves the maker-scoped policy for the seller, falling
// back to the global policy when the seller has none covering the instant.
func (s *Service) effectivePolicy(ctx context.Context, sellerID int64, at time.Time) (*feepolicy.FeePolicy, error) {
	scopeRef := sql.NullInt64{Int64: sellerID, Valid: true}

	policy, err := s.policies.FindEffective(ctx, feepolicy.ScopeMaker, scopeRef, at)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve maker fee policy: %w", err)
	}

	policy, err = s.policies.FindEffective(ctx, feepolicy.ScopeGlobal, sql.NullInt64{}, at)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no fee policy covers %s", xerrors.ErrNotFound, at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("failed to resolve global fee policy: %w", err)
	}
	return policy, nil
}

// ApprovalOutcome reports what happened to one settlement id in an
// approval request.
type ApprovalOutcome struct {
	SettlementID int64          `json:"settlement_id"`
	Approved     bool           `json:"approved"`
	Reason       string         `json:"reason,omitempty"`
	Payout       *payout.Result `json:"payout,omitempty"`
}

// ApproveSettlements moves pending settlements to approved. With
// ExecuteNow the approved ids are handed straight to the payout chain;
// otherwise the scheduled payout run picks them up. Items that cannot be
// approved (wrong state, nothing to pay, unknown id) are reported per id
// without failing the batch.
func (s *Service) ApproveSettlements(ctx context.Context, req domain.ApproveRequest) ([]ApprovalOutcome, error) {
	if len(req.SettlementIDs) == 0 {
		return nil, fmt.Errorf("%w: settlement ids are required", xerrors.ErrInvalidInput)
	}

	found, err := s.store.FindByIDs(ctx, req.SettlementIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlements: %w", err)
	}
	byID := make(map[int64]*domain.Settlement, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	now := time.Now()
	outcomes := make([]ApprovalOutcome, 0, len(req.SettlementIDs))
	var approvedIDs []int64

	for _, id := range req.SettlementIDs {
		stl, ok := byID[id]
		if !ok {
			outcomes = append(outcomes, ApprovalOutcome{SettlementID: id, Reason: "settlement not found"})
			continue
		}
		if !stl.Approvable() {
			outcomes = append(outcomes, ApprovalOutcome{
				SettlementID: id,
				Reason:       fmt.Sprintf("settlement is not approvable (status %s)", stl.Status),
			})
			continue
		}

		if err := s.store.MarkApproved(ctx, id, now); err != nil {
			outcomes = append(outcomes, ApprovalOutcome{SettlementID: id, Reason: "approval was not applied"})
			continue
		}

		outcomes = append(outcomes, ApprovalOutcome{SettlementID: id, Approved: true})
		approvedIDs = append(approvedIDs, id)
	}

	s.logger.Info("settlements approved",
		zap.Int("requested", len(req.SettlementIDs)),
		zap.Int("approved", len(approvedIDs)),
		zap.Bool("execute_now", req.ExecuteNow),
	)

	if req.ExecuteNow && len(approvedIDs) > 0 {
		results, err := s.payouts.ExecutePayouts(ctx, approvedIDs)
		if err != nil {
			return outcomes, fmt.Errorf("approval succeeded but payout failed to start: %w", err)
		}

		bySettlement := make(map[int64]payout.Result, len(results))
		for _, r := range results {
			bySettlement[r.SettlementID] = r
		}
		for i := range outcomes {
			if r, ok := bySettlement[outcomes[i].SettlementID]; ok {
				r := r
				outcomes[i].Payout = &r
			}
		}
	}

	return outcomes, nil
}

// GetSettlement returns one settlement with its items.
func (s *Service) GetSettlement(ctx context.Context, id int64) (*domain.Settlement, error) {
	return s.store.FindByID(ctx, id)
}

// ListSettlements returns summaries matching the filters plus the total
// row count for paging.
func (s *Service) ListSettlements(ctx context.Context, filters *domain.ListFilters) ([]domain.Summary, int64, error) {
	return s.store.List(ctx, filters)
}

// CreateFeePolicy records a new scoped rate window.
func (s *Service) CreateFeePolicy(ctx context.Context, req feepolicy.CreateRequest) (*feepolicy.FeePolicy, error) {
	policy, err := req.ToPolicy()
	if err != nil {
		return nil, err
	}

	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to create fee policy: %w", err)
	}

	s.logger.Info("fee policy created",
		zap.Int64("policy_id", policy.ID),
		zap.String("scope_type", string(policy.ScopeType)),
		zap.Float64("platform_fee_rate", policy.PlatformFeeRate),
		zap.Float64("pg_fee_rate", policy.PgFeeRate),
	)
	return policy, nil
}

// ListFeePolicies returns the policy history for a scope.
func (s *Service) ListFeePolicies(ctx context.Context, scopeType feepolicy.ScopeType, scopeRefID sql.NullInt64) ([]feepolicy.FeePolicy, error) {
	return s.policies.ListByScope(ctx, scopeType, scopeRefID)
}

// EffectiveFeePolicy answers which rates apply to a seller at an instant,
// using the same maker-then-global resolution the settlement build uses.
// Without a seller it resolves the global policy directly.
func (s *Service) EffectiveFeePolicy(ctx context.Context, sellerID *int64, at time.Time) (*feepolicy.FeePolicy, error) {
	if at.IsZero() {
		at = time.Now()
	}
	if sellerID != nil {
		return s.effectivePolicy(ctx, *sellerID, at)
	}

	policy, err := s.policies.FindEffective(ctx, feepolicy.ScopeGlobal, sql.NullInt64{}, at)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no fee policy covers %s", xerrors.ErrNotFound, at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("failed to resolve global fee policy: %w", err)
	}
	return policy, nil
}

// BankAccount is the payout destination captured at build time.
type BankAccount struct {
	BankCode      string `json:"bank_code" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountHolder string `json:"account_holder" binding:"required"`
}

func (b BankAccount) validate() error {
	if b.BankCode == "" || b.AccountNumber == "" || b.AccountHolder == "" {
		return fmt.Errorf("%w: bank code, account number and holder are required", xerrors.ErrInvalidInput)
	}
	return nil
}
