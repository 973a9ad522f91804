// internal/handlers/settlement/settlement_handler.go
package settlement

import (
	"errors"
	"net/http"
	"strconv"

	domain "groble-service/internal/domain/settlement"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/response"
	settlementService "groble-service/internal/service/settlement"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	settlementService *settlementService.Service
}

func NewSettlementHandler(svc *settlementService.Service) *SettlementHandler {
	return &SettlementHandler{settlementService: svc}
}

type buildRequest struct {
	domain.BuildRequest
	Bank settlementService.BankAccount `json:"bank" binding:"required"`
}

// BuildSettlement assembles a monthly settlement for a seller
func (h *SettlementHandler) BuildSettlement(c *gin.Context) {
	var req buildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	stl, err := h.settlementService.BuildMonthlySettlement(c.Request.Context(), req.BuildRequest, req.Bank)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid settlement request", err)
		case errors.Is(err, xerrors.ErrNotFound):
			response.Error(c, http.StatusNotFound, "no settleable purchases in period", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to build settlement", err)
		}
		return
	}

	response.Success(c, http.StatusCreated, "settlement built", stl)
}

// ListSettlements retrieves settlement summaries with filters
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	var filters domain.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	summaries, total, err := h.settlementService.ListSettlements(c.Request.Context(), &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list settlements", err)
		return
	}

	response.Success(c, http.StatusOK, "settlements retrieved", gin.H{
		"settlements": summaries,
		"total":       total,
	})
}

// GetSettlement retrieves a single settlement with its items
func (h *SettlementHandler) GetSettlement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid settlement ID", err)
		return
	}

	stl, err := h.settlementService.GetSettlement(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "settlement not found", err)
		return
	}

	response.Success(c, http.StatusOK, "settlement retrieved", stl)
}

// ApproveSettlements approves settlements for payout, optionally
// executing the payout immediately
func (h *SettlementHandler) ApproveSettlements(c *gin.Context) {
	var req domain.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	outcomes, err := h.settlementService.ApproveSettlements(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "invalid approval request", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to approve settlements", err)
		return
	}

	response.Success(c, http.StatusOK, "approval finished", outcomes)
}
