// internal/service/payout/payout_service.go
package payout

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"groble-service/internal/domain/settlement"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/payple"
	"groble-service/internal/repository/postgres"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Gateway is the slice of the Payple API the orchestrator needs.
type Gateway interface {
	PartnerAuth(ctx context.Context) (*payple.PartnerAuthResult, error)
	VerifyAccount(ctx context.Context, token string, req payple.AccountVerifyRequest) (*payple.AccountVerifyResult, error)
	TransferStandby(ctx context.Context, token string, req payple.TransferStandbyRequest) (*payple.TransferStandbyResult, error)
	TransferExecute(ctx context.Context, token string, req payple.TransferExecuteRequest) (*payple.TransferExecuteResult, error)
}

// SettlementStore is the persistence surface the orchestrator drives.
type SettlementStore interface {
	FindByID(ctx context.Context, id int64) (*settlement.Settlement, error)
	FindByIDs(ctx context.Context, ids []int64) ([]settlement.Settlement, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, transferID string, now time.Time) error
	MarkFailed(ctx context.Context, id int64, note string) error
}

// AttemptStore records transfer-execution attempts for webhook correlation.
type AttemptStore interface {
	Create(ctx context.Context, a *postgres.PayoutAttempt) error
	FindByGroupKey(ctx context.Context, groupKey string) (*postgres.PayoutAttempt, error)
	Settle(ctx context.Context, id int64, status, transferID string, at time.Time) (bool, error)
}

// Result is the structured outcome of one settlement's payout chain.
// Partial progress is kept so an operator knows which steps completed
// before a failure.
type Result struct {
	SettlementID int64  `json:"settlement_id"`
	Reference    string `json:"reference,omitempty"`
	Succeeded    bool   `json:"succeeded"`
	TransferID   string `json:"transfer_id,omitempty"`
	Amount       int64  `json:"amount,omitempty"`

	FailedStep   Step   `json:"failed_step,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	BillingKeyObtained bool   `json:"billing_key_obtained"`
	GroupKeyObtained   bool   `json:"group_key_obtained"`
	MaskedBillingKey   string `json:"masked_billing_key,omitempty"`
	MaskedGroupKey     string `json:"masked_group_key,omitempty"`

	// rawGroupKey stays internal; it is needed for confirmation but must
	// never be serialized.
	rawGroupKey string
}

const defaultTokenTTL = 30 * time.Minute

// Service drives the sequential payout protocol against the PG. The
// partner auth token is cached with its expiry and shared across
// settlements; billing keys and group keys belong to a single settlement's
// chain and are never reused.
type Service struct {
	gateway     Gateway
	settlements SettlementStore
	attempts    AttemptStore
	logger      *zap.Logger

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

func NewService(gateway Gateway, settlements SettlementStore, attempts AttemptStore, logger *zap.Logger) *Service {
	return &Service{
		gateway:     gateway,
		settlements: settlements,
		attempts:    attempts,
		logger:      logger,
	}
}

// ExecutePayouts validates the admin-supplied settlement ids and runs the
// payout chain for each as an independent unit of work. An empty id list
// is a caller error; a settlement in the wrong state yields a failure
// result for that settlement without blocking the rest.
func (s *Service) ExecutePayouts(ctx context.Context, ids []int64) ([]Result, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: settlement ids are required", xerrors.ErrInvalidInput)
	}

	found, err := s.settlements.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlements: %w", err)
	}

	byID := make(map[int64]*settlement.Settlement, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		stl, ok := byID[id]
		if !ok {
			results = append(results, Result{
				SettlementID: id,
				ErrorMessage: "settlement not found",
			})
			continue
		}
		if !stl.PayoutReady() {
			results = append(results, Result{
				SettlementID: id,
				ErrorMessage: fmt.Sprintf("settlement is not approved for payout (status %s)", stl.Status),
			})
			continue
		}

		results = append(results, s.ExecutePayout(ctx, id))
	}

	return results, nil
}

// ExecutePayout runs the payout chain for one settlement. Step errors are
// caught here, logged with settlement context and converted into a
// structured result; they never propagate as raw errors.
func (s *Service) ExecutePayout(ctx context.Context, settlementID int64) Result {
	stl, err := s.settlements.FindByID(ctx, settlementID)
	if err != nil {
		s.logger.Error("failed to load settlement for payout",
			zap.Int64("settlement_id", settlementID),
			zap.Error(err),
		)
		return Result{SettlementID: settlementID, ErrorMessage: "settlement not found"}
	}

	// Exclusive claim: approved -> processing moves exactly once.
	if err := s.settlements.MarkProcessing(ctx, settlementID); err != nil {
		s.logger.Warn("settlement not claimable for payout",
			zap.Int64("settlement_id", settlementID),
			zap.String("status", string(stl.Status)),
		)
		return Result{
			SettlementID: settlementID,
			ErrorMessage: "settlement is not in an approvable state",
		}
	}

	result := s.runChain(ctx, stl)

	if !result.Succeeded {
		note := fmt.Sprintf("step %s: %s", result.FailedStep, result.ErrorMessage)
		if err := s.settlements.MarkFailed(ctx, settlementID, note); err != nil {
			s.logger.Error("failed to record payout failure",
				zap.Int64("settlement_id", settlementID),
				zap.Error(err),
			)
		}

		s.logger.Error("settlement payout failed",
			zap.Int64("settlement_id", settlementID),
			zap.String("failed_step", string(result.FailedStep)),
			zap.String("error", result.ErrorMessage),
			zap.Bool("billing_key_obtained", result.BillingKeyObtained),
			zap.Bool("group_key_obtained", result.GroupKeyObtained),
		)
		return result
	}

	// The synchronous answer was definitive; confirm through the same
	// idempotent path the webhook uses so a racing webhook is harmless.
	if err := s.ConfirmTransferResult(ctx, result.rawGroupKey, result.TransferID, true, ""); err != nil {
		s.logger.Error("failed to confirm transfer result",
			zap.Int64("settlement_id", settlementID),
			zap.Error(err),
		)
	}

	s.logger.Info("settlement payout executed",
		zap.Int64("settlement_id", settlementID),
		zap.String("reference", result.Reference),
		zap.String("transfer_id", result.TransferID),
		zap.Int64("amount", result.Amount),
		zap.String("group_key", result.MaskedGroupKey),
	)
	return result
}

// runChain performs steps 1-8 for one settlement, short-circuiting on the
// first failure. Each step's output feeds the next step's input.
func (s *Service) runChain(ctx context.Context, stl *settlement.Settlement) Result {
	result := Result{SettlementID: stl.ID}

	fail := func(err error) Result {
		result.Succeeded = false
		result.FailedStep = stepOf(err)
		result.ErrorMessage = err.Error()
		return result
	}

	// Steps 1-2: partner auth
	token, err := s.partnerToken(ctx)
	if err != nil {
		return fail(err)
	}

	// Steps 3-4: account verification, billing key required
	verify, err := s.gateway.VerifyAccount(ctx, token, payple.AccountVerifyRequest{
		BankCode:      stl.BankCode,
		AccountNumber: stl.AccountNumber,
		AccountHolder: stl.AccountHolder,
		SubID:         strconv.FormatInt(stl.ID, 10),
	})
	if err != nil {
		return fail(&AccountVerificationError{Message: err.Error()})
	}
	if verify.Result != payple.ResultAuthSuccess {
		return fail(&AccountVerificationError{Message: verify.Message})
	}
	if verify.BillingKey == "" {
		return fail(&AccountVerificationError{Message: "verification succeeded but billing key is missing"})
	}
	result.BillingKeyObtained = true
	result.MaskedBillingKey = payple.MaskKey(verify.BillingKey)

	// Steps 5-6: transfer standby, group key required
	standby, err := s.gateway.TransferStandby(ctx, token, payple.TransferStandbyRequest{
		BillingKey: verify.BillingKey,
		Amount:     stl.TotalSettlementAmount,
		Purpose:    fmt.Sprintf("groble settlement %d", stl.ID),
	})
	if err != nil {
		return fail(&TransferError{Step: StepTransferStandby, Message: err.Error()})
	}
	if standby.Result != payple.ResultTransferSuccess {
		return fail(&TransferError{Step: StepTransferStandby, Message: standby.Message})
	}
	if standby.GroupKey == "" {
		return fail(&TransferError{Step: StepTransferStandby, Message: "standby succeeded but group key is missing"})
	}
	result.GroupKeyObtained = true
	result.MaskedGroupKey = payple.MaskKey(standby.GroupKey)
	result.rawGroupKey = standby.GroupKey

	// Record the attempt before executing so a webhook that beats the
	// synchronous response still finds its correlation row.
	attempt := &postgres.PayoutAttempt{
		SettlementID: stl.ID,
		Reference:    ulid.Make().String(),
		GroupKey:     standby.GroupKey,
		Amount:       stl.TotalSettlementAmount,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return fail(&TransferError{Step: StepTransferExecution, Message: err.Error()})
	}
	result.Reference = attempt.Reference

	// Step 7: transfer execution
	exec, err := s.gateway.TransferExecute(ctx, token, payple.TransferExecuteRequest{
		BillingKey:   verify.BillingKey,
		GroupKey:     standby.GroupKey,
		SettlementID: strconv.FormatInt(stl.ID, 10),
		Amount:       stl.TotalSettlementAmount,
	})
	if err != nil {
		return fail(&TransferError{Step: StepTransferExecution, Message: err.Error()})
	}
	if exec.Result != payple.ResultTransferSuccess {
		return fail(&TransferError{Step: StepTransferExecution, Message: exec.Message})
	}

	// Step 8
	result.Succeeded = true
	result.TransferID = exec.TransferID
	result.Amount = exec.Amount
	return result
}

// ConfirmTransferResult records the definitive outcome of a transfer
// execution, keyed by the group key used in step 7. It is idempotent and
// callable from both the synchronous response path and the Payple webhook
// handler; whichever arrives second applies nothing.
func (s *Service) ConfirmTransferResult(ctx context.Context, groupKey, transferID string, succeeded bool, message string) error {
	attempt, err := s.attempts.FindByGroupKey(ctx, groupKey)
	if err != nil {
		return fmt.Errorf("unknown transfer correlation %s: %w", payple.MaskKey(groupKey), err)
	}

	status := postgres.PayoutAttemptConfirmed
	if !succeeded {
		status = postgres.PayoutAttemptFailed
	}

	now := time.Now()
	applied, err := s.attempts.Settle(ctx, attempt.ID, status, transferID, now)
	if err != nil {
		return err
	}
	if !applied {
		// Already confirmed through the other path.
		return nil
	}

	if succeeded {
		if err := s.settlements.MarkCompleted(ctx, attempt.SettlementID, transferID, now); err != nil {
			return fmt.Errorf("failed to complete settlement %d: %w", attempt.SettlementID, err)
		}
		s.logger.Info("transfer confirmed",
			zap.Int64("settlement_id", attempt.SettlementID),
			zap.String("group_key", payple.MaskKey(groupKey)),
			zap.String("transfer_id", transferID),
		)
		return nil
	}

	note := fmt.Sprintf("step %s: %s", StepTransferExecution, message)
	if err := s.settlements.MarkFailed(ctx, attempt.SettlementID, note); err != nil {
		return fmt.Errorf("failed to fail settlement %d: %w", attempt.SettlementID, err)
	}
	s.logger.Warn("transfer rejected",
		zap.Int64("settlement_id", attempt.SettlementID),
		zap.String("group_key", payple.MaskKey(groupKey)),
		zap.String("error", message),
	)
	return nil
}

// partnerToken returns a valid partner auth token, reusing the cached one
// until shortly before expiry.
func (s *Service) partnerToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenUntil.Add(-30*time.Second)) {
		return s.token, nil
	}

	auth, err := s.gateway.PartnerAuth(ctx)
	if err != nil {
		return "", &PartnerAuthError{Message: err.Error()}
	}
	if auth.Result != payple.ResultAuthSuccess {
		return "", &PartnerAuthError{Message: auth.Message}
	}
	if auth.AccessToken == "" {
		return "", &PartnerAuthError{Message: "auth succeeded but access token is missing"}
	}

	ttl := defaultTokenTTL
	if auth.ExpiresIn > 0 {
		ttl = time.Duration(auth.ExpiresIn) * time.Second
	}

	s.token = auth.AccessToken
	s.tokenUntil = time.Now().Add(ttl)
	return s.token, nil
}
