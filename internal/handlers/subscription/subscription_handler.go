// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"groble-service/internal/domain/subscription"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/response"
	"groble-service/internal/service/billing"
	subscriptionService "groble-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *subscriptionService.Service
	billingService      *billing.Service
}

func NewSubscriptionHandler(subService *subscriptionService.Service, billingService *billing.Service) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subService,
		billingService:      billingService,
	}
}

// ActivateSubscription registers a subscription from a first successful charge
func (h *SubscriptionHandler) ActivateSubscription(c *gin.Context) {
	var req subscription.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sub, err := h.subscriptionService.Activate(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrConflict):
			response.Error(c, http.StatusConflict, "subscription already exists", err)
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid subscription request", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to activate subscription", err)
		}
		return
	}

	response.Success(c, http.StatusCreated, "subscription activated", sub.View())
}

// RenewSubscription rolls a subscription onto a new billing cycle
func (h *SubscriptionHandler) RenewSubscription(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req subscription.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sub, err := h.subscriptionService.Renew(c.Request.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			response.Error(c, http.StatusNotFound, "subscription not found", err)
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid renewal request", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to renew subscription", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "subscription renewed", sub.View())
}

// ListSubscriptions retrieves subscriptions with filters
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	var filters subscription.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.subscriptionService.List(c.Request.Context(), &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list subscriptions", err)
		return
	}

	response.Success(c, http.StatusOK, "subscriptions retrieved", result)
}

// GetSubscription retrieves a single subscription by ID
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	sub, err := h.subscriptionService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "subscription not found", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// CancelSubscription cancels a subscription
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	// An empty body is fine, cancellation is effective immediately then.
	var req subscription.CancelRequest
	_ = c.ShouldBindJSON(&req)

	var at time.Time
	if req.EffectiveAt != nil {
		at = *req.EffectiveAt
	}

	sub, err := h.billingService.Cancel(c.Request.Context(), id, at)
	if err != nil {
		respondServiceError(c, err, "failed to cancel subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", sub.View())
}

// ResumeSubscription reactivates a cancelled subscription
func (h *SubscriptionHandler) ResumeSubscription(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req subscription.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sub, err := h.billingService.Resume(c.Request.Context(), id, req.BillingKey, req.NextBillingDate)
	if err != nil {
		respondServiceError(c, err, "failed to resume subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription resumed", sub.View())
}

// TriggerBilling runs one billing attempt immediately (admin only)
func (h *SubscriptionHandler) TriggerBilling(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	outcome, err := h.billingService.AttemptBilling(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "billing attempt failed", err)
		return
	}

	response.Success(c, http.StatusOK, "billing attempt finished", gin.H{"outcome": outcome})
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func respondServiceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(c, http.StatusNotFound, "subscription not found", err)
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, message, err)
	default:
		response.Error(c, http.StatusInternalServerError, message, err)
	}
}
