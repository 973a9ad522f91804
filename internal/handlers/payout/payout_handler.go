// internal/handlers/payout/payout_handler.go
package payout

import (
	"net/http"

	"groble-service/internal/pkg/payple"
	"groble-service/internal/pkg/response"
	payoutService "groble-service/internal/service/payout"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	payoutService *payoutService.Service
	logger        *zap.Logger
}

func NewPayoutHandler(svc *payoutService.Service, logger *zap.Logger) *PayoutHandler {
	return &PayoutHandler{
		payoutService: svc,
		logger:        logger,
	}
}

type executeRequest struct {
	SettlementIDs []int64 `json:"settlement_ids" binding:"required"`
}

// ExecutePayouts runs the payout chain for approved settlements
func (h *PayoutHandler) ExecutePayouts(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	results, err := h.payoutService.ExecutePayouts(c.Request.Context(), req.SettlementIDs)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to execute payouts", err)
		return
	}

	response.Success(c, http.StatusOK, "payout run finished", results)
}

// transferWebhook is the asynchronous transfer result Payple posts back.
type transferWebhook struct {
	GroupKey   string `json:"group_key" binding:"required"`
	TransferID string `json:"api_tran_id"`
	Result     string `json:"result"`
	Message    string `json:"message"`
}

// TransferResultWebhook records the definitive transfer outcome. The
// endpoint answers 200 even for unknown correlations so the PG stops
// retrying; the mismatch is logged for operators.
func (h *PayoutHandler) TransferResultWebhook(c *gin.Context) {
	var hook transferWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid webhook body", err)
		return
	}

	succeeded := hook.Result == payple.ResultTransferSuccess
	err := h.payoutService.ConfirmTransferResult(c.Request.Context(), hook.GroupKey, hook.TransferID, succeeded, hook.Message)
	if err != nil {
		h.logger.Warn("transfer webhook not applied",
			zap.String("result", hook.Result),
			zap.Error(err),
		)
	}

	response.Success(c, http.StatusOK, "webhook received", nil)
}
