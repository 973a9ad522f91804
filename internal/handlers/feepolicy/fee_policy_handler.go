// internal/handlers/feepolicy/fee_policy_handler.go
package feepolicy

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"groble-service/internal/domain/feepolicy"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/response"
	settlementService "groble-service/internal/service/settlement"

	"github.com/gin-gonic/gin"
)

type FeePolicyHandler struct {
	settlementService *settlementService.Service
}

func NewFeePolicyHandler(svc *settlementService.Service) *FeePolicyHandler {
	return &FeePolicyHandler{settlementService: svc}
}

// CreateFeePolicy records a new rate window
func (h *FeePolicyHandler) CreateFeePolicy(c *gin.Context) {
	var req feepolicy.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	policy, err := h.settlementService.CreateFeePolicy(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "invalid fee policy", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to create fee policy", err)
		return
	}

	response.Success(c, http.StatusCreated, "fee policy created", policy)
}

// GetEffectiveFeePolicy resolves the rates that apply to a seller (or
// globally) at an instant
func (h *FeePolicyHandler) GetEffectiveFeePolicy(c *gin.Context) {
	var sellerID *int64
	if raw := c.Query("seller_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid seller_id", err)
			return
		}
		sellerID = &id
	}

	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid at timestamp, expected RFC3339", err)
			return
		}
		at = parsed
	}

	policy, err := h.settlementService.EffectiveFeePolicy(c.Request.Context(), sellerID, at)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "no effective fee policy", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to resolve fee policy", err)
		return
	}

	response.Success(c, http.StatusOK, "effective fee policy resolved", policy)
}

// ListFeePolicies returns the policy history for a scope
func (h *FeePolicyHandler) ListFeePolicies(c *gin.Context) {
	scopeType := feepolicy.ScopeType(c.DefaultQuery("scope_type", string(feepolicy.ScopeGlobal)))

	var scopeRef sql.NullInt64
	if raw := c.Query("scope_ref_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid scope_ref_id", err)
			return
		}
		scopeRef = sql.NullInt64{Int64: id, Valid: true}
	}

	policies, err := h.settlementService.ListFeePolicies(c.Request.Context(), scopeType, scopeRef)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list fee policies", err)
		return
	}

	response.Success(c, http.StatusOK, "fee policies retrieved", policies)
}
