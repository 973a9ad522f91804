// internal/service/payout/payout_service_test.go
package payout

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"groble-service/internal/domain/settlement"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/payple"
	"groble-service/internal/repository/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	authCalls    int
	verifyCalls  int
	standbyCalls int
	executeCalls int

	authResult    *payple.PartnerAuthResult
	authErr       error
	verifyResult  *payple.AccountVerifyResult
	verifyErr     error
	standbyResult *payple.TransferStandbyResult
	standbyErr    error
	executeResult *payple.TransferExecuteResult
	executeErr    error
}

func (g *fakeGateway) PartnerAuth(ctx context.Context) (*payple.PartnerAuthResult, error) {
	g.authCalls++
	return g.authResult, g.authErr
}

func (g *fakeGateway) VerifyAccount(ctx context.Context, token string, req payple.AccountVerifyRequest) (*payple.AccountVerifyResult, error) {
	g.verifyCalls++
	return g.verifyResult, g.verifyErr
}

func (g *fakeGateway) TransferStandby(ctx context.Context, token string, req payple.TransferStandbyRequest) (*payple.TransferStandbyResult, error) {
	g.standbyCalls++
	return g.standbyResult, g.standbyErr
}

func (g *fakeGateway) TransferExecute(ctx context.Context, token string, req payple.TransferExecuteRequest) (*payple.TransferExecuteResult, error) {
	g.executeCalls++
	return g.executeResult, g.executeErr
}

func healthyGateway() *fakeGateway {
	return &fakeGateway{
		authResult: &payple.PartnerAuthResult{
			Result:      payple.ResultAuthSuccess,
			AccessToken: "token-1",
			ExpiresIn:   3600,
		},
		verifyResult: &payple.AccountVerifyResult{
			Result:     payple.ResultAuthSuccess,
			BillingKey: "bk_0011223344556677",
		},
		standbyResult: &payple.TransferStandbyResult{
			Result:   payple.ResultTransferSuccess,
			GroupKey: "gk_8877665544332211",
		},
		executeResult: &payple.TransferExecuteResult{
			Result:     payple.ResultTransferSuccess,
			TransferID: "tr_20260801_0001",
			Amount:     29865,
		},
	}
}

type fakeSettlementStore struct {
	settlements map[int64]*settlement.Settlement

	processingCalls []int64
	completed       map[int64]string
	failed          map[int64]string
}

func newFakeSettlementStore(items ...*settlement.Settlement) *fakeSettlementStore {
	s := &fakeSettlementStore{
		settlements: make(map[int64]*settlement.Settlement),
		completed:   make(map[int64]string),
		failed:      make(map[int64]string),
	}
	for _, it := range items {
		s.settlements[it.ID] = it
	}
	return s
}

func (s *fakeSettlementStore) FindByID(ctx context.Context, id int64) (*settlement.Settlement, error) {
	stl, ok := s.settlements[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return stl, nil
}

func (s *fakeSettlementStore) FindByIDs(ctx context.Context, ids []int64) ([]settlement.Settlement, error) {
	var out []settlement.Settlement
	for _, id := range ids {
		if stl, ok := s.settlements[id]; ok {
			out = append(out, *stl)
		}
	}
	return out, nil
}

func (s *fakeSettlementStore) MarkProcessing(ctx context.Context, id int64) error {
	stl, ok := s.settlements[id]
	if !ok || stl.Status != settlement.StatusApproved {
		return xerrors.ErrNotFound
	}
	stl.Status = settlement.StatusProcessing
	s.processingCalls = append(s.processingCalls, id)
	return nil
}

func (s *fakeSettlementStore) MarkCompleted(ctx context.Context, id int64, transferID string, now time.Time) error {
	stl, ok := s.settlements[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	stl.Status = settlement.StatusCompleted
	stl.TransferID = sql.NullString{String: transferID, Valid: true}
	s.completed[id] = transferID
	return nil
}

func (s *fakeSettlementStore) MarkFailed(ctx context.Context, id int64, note string) error {
	stl, ok := s.settlements[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	stl.Status = settlement.StatusFailed
	s.failed[id] = note
	return nil
}

type fakeAttemptStore struct {
	nextID   int64
	attempts map[string]*postgres.PayoutAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*postgres.PayoutAttempt)}
}

func (s *fakeAttemptStore) Create(ctx context.Context, a *postgres.PayoutAttempt) error {
	s.nextID++
	a.ID = s.nextID
	a.Status = postgres.PayoutAttemptRequested
	a.CreatedAt = time.Now()
	s.attempts[a.GroupKey] = a
	return nil
}

func (s *fakeAttemptStore) FindByGroupKey(ctx context.Context, groupKey string) (*postgres.PayoutAttempt, error) {
	a, ok := s.attempts[groupKey]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return a, nil
}

func (s *fakeAttemptStore) Settle(ctx context.Context, id int64, status, transferID string, at time.Time) (bool, error) {
	for _, a := range s.attempts {
		if a.ID == id {
			if a.Status != postgres.PayoutAttemptRequested {
				return false, nil
			}
			a.Status = status
			a.TransferID = transferID
			a.ConfirmedAt = at
			return true, nil
		}
	}
	return false, fmt.Errorf("attempt %d not found", id)
}

func approvedSettlement(id int64) *settlement.Settlement {
	return &settlement.Settlement{
		ID:                    id,
		SellerID:              7,
		TotalSalesAmount:      30900,
		TotalPlatformFee:      464,
		TotalPgFee:            525,
		TotalVat:              46,
		TotalSettlementAmount: 29865,
		BankCode:              "004",
		AccountNumber:         "110123456789",
		AccountHolder:         "Kim Groble",
		Status:                settlement.StatusApproved,
	}
}

func TestExecutePayoutSuccess(t *testing.T) {
	gw := healthyGateway()
	store := newFakeSettlementStore(approvedSettlement(1))
	attempts := newFakeAttemptStore()
	svc := NewService(gw, store, attempts, zap.NewNop())

	result := svc.ExecutePayout(context.Background(), 1)

	assert.True(t, result.Succeeded)
	assert.Equal(t, "tr_20260801_0001", result.TransferID)
	assert.Equal(t, int64(29865), result.Amount)
	assert.True(t, result.BillingKeyObtained)
	assert.True(t, result.GroupKeyObtained)
	assert.Equal(t, "bk_0***********6677", result.MaskedBillingKey)
	assert.NotEmpty(t, result.Reference)

	assert.Equal(t, 1, gw.authCalls)
	assert.Equal(t, 1, gw.verifyCalls)
	assert.Equal(t, 1, gw.standbyCalls)
	assert.Equal(t, 1, gw.executeCalls)

	// Synchronous confirmation runs through the webhook path.
	assert.Equal(t, "tr_20260801_0001", store.completed[1])
	assert.Equal(t, settlement.StatusCompleted, store.settlements[1].Status)
}

func TestExecutePayoutMissingBillingKeySkipsTransferSteps(t *testing.T) {
	gw := healthyGateway()
	gw.verifyResult = &payple.AccountVerifyResult{
		Result:     payple.ResultAuthSuccess,
		BillingKey: "",
	}
	store := newFakeSettlementStore(approvedSettlement(1))
	svc := NewService(gw, store, newFakeAttemptStore(), zap.NewNop())

	result := svc.ExecutePayout(context.Background(), 1)

	assert.False(t, result.Succeeded)
	assert.Equal(t, StepAccountVerification, result.FailedStep)
	assert.False(t, result.BillingKeyObtained)
	assert.False(t, result.GroupKeyObtained)

	// Without a billing key the standby and execute endpoints are never hit.
	assert.Equal(t, 0, gw.standbyCalls)
	assert.Equal(t, 0, gw.executeCalls)

	assert.Equal(t, settlement.StatusFailed, store.settlements[1].Status)
	assert.Contains(t, store.failed[1], string(StepAccountVerification))
}

func TestExecutePayoutPartnerAuthFailureStopsChain(t *testing.T) {
	gw := healthyGateway()
	gw.authResult = &payple.PartnerAuthResult{Result: "A9999", Message: "invalid partner credentials"}
	store := newFakeSettlementStore(approvedSettlement(1))
	svc := NewService(gw, store, newFakeAttemptStore(), zap.NewNop())

	result := svc.ExecutePayout(context.Background(), 1)

	assert.False(t, result.Succeeded)
	assert.Equal(t, StepPartnerAuth, result.FailedStep)
	assert.Equal(t, 0, gw.verifyCalls)
	assert.Equal(t, 0, gw.standbyCalls)
	assert.Equal(t, 0, gw.executeCalls)
}

func TestExecutePayoutStandbyDeclineKeepsPartialProgress(t *testing.T) {
	gw := healthyGateway()
	gw.standbyResult = &payple.TransferStandbyResult{Result: "T1001", Message: "insufficient partner balance"}
	store := newFakeSettlementStore(approvedSettlement(1))
	svc := NewService(gw, store, newFakeAttemptStore(), zap.NewNop())

	result := svc.ExecutePayout(context.Background(), 1)

	assert.False(t, result.Succeeded)
	assert.Equal(t, StepTransferStandby, result.FailedStep)
	assert.True(t, result.BillingKeyObtained)
	assert.False(t, result.GroupKeyObtained)
	assert.Equal(t, 0, gw.executeCalls)
	assert.Contains(t, result.ErrorMessage, "insufficient partner balance")
}

func TestExecutePayoutTokenReusedAcrossSettlements(t *testing.T) {
	gw := healthyGateway()
	store := newFakeSettlementStore(approvedSettlement(1), approvedSettlement(2))
	svc := NewService(gw, store, newFakeAttemptStore(), zap.NewNop())

	results, err := svc.ExecutePayouts(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Succeeded)
	assert.True(t, results[1].Succeeded)
	assert.Equal(t, 1, gw.authCalls, "cached partner token should be reused")
	assert.Equal(t, 2, gw.verifyCalls)
}

func TestExecutePayoutsRejectsEmptyIDs(t *testing.T) {
	svc := NewService(healthyGateway(), newFakeSettlementStore(), newFakeAttemptStore(), zap.NewNop())

	_, err := svc.ExecutePayouts(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestExecutePayoutsSkipsUnapproved(t *testing.T) {
	pending := approvedSettlement(3)
	pending.Status = settlement.StatusPending
	gw := healthyGateway()
	store := newFakeSettlementStore(approvedSettlement(1), pending)
	svc := NewService(gw, store, newFakeAttemptStore(), zap.NewNop())

	results, err := svc.ExecutePayouts(context.Background(), []int64{1, 3, 9})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Succeeded)
	assert.False(t, results[1].Succeeded)
	assert.Contains(t, results[1].ErrorMessage, "not approved")
	assert.False(t, results[2].Succeeded)
	assert.Equal(t, "settlement not found", results[2].ErrorMessage)

	// Only the approved settlement reached the payout chain.
	assert.Equal(t, 1, gw.executeCalls)
}

func TestConfirmTransferResultIdempotent(t *testing.T) {
	store := newFakeSettlementStore(approvedSettlement(1))
	attempts := newFakeAttemptStore()
	require.NoError(t, attempts.Create(context.Background(), &postgres.PayoutAttempt{
		SettlementID: 1,
		Reference:    "ref-1",
		GroupKey:     "gk_8877665544332211",
		Amount:       29865,
	}))

	svc := NewService(healthyGateway(), store, attempts, zap.NewNop())

	err := svc.ConfirmTransferResult(context.Background(), "gk_8877665544332211", "tr_1", true, "")
	require.NoError(t, err)
	assert.Equal(t, "tr_1", store.completed[1])

	// A duplicate webhook applies nothing and does not error.
	store.completed = map[int64]string{}
	err = svc.ConfirmTransferResult(context.Background(), "gk_8877665544332211", "tr_1", true, "")
	require.NoError(t, err)
	assert.Empty(t, store.completed)
}

func TestConfirmTransferResultFailureMarksSettlement(t *testing.T) {
	store := newFakeSettlementStore(approvedSettlement(1))
	attempts := newFakeAttemptStore()
	require.NoError(t, attempts.Create(context.Background(), &postgres.PayoutAttempt{
		SettlementID: 1,
		GroupKey:     "gk_1",
	}))

	svc := NewService(healthyGateway(), store, attempts, zap.NewNop())

	err := svc.ConfirmTransferResult(context.Background(), "gk_1", "", false, "receiving bank rejected the transfer")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusFailed, store.settlements[1].Status)
	assert.Contains(t, store.failed[1], "receiving bank rejected the transfer")
}

func TestConfirmTransferResultUnknownGroupKey(t *testing.T) {
	svc := NewService(healthyGateway(), newFakeSettlementStore(), newFakeAttemptStore(), zap.NewNop())

	err := svc.ConfirmTransferResult(context.Background(), "gk_unknown", "tr_x", true, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
