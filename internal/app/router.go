// internal/app/router.go
package app

import (
	authHandler "groble-service/internal/handlers/auth"
	feePolicyHandler "groble-service/internal/handlers/feepolicy"
	payoutHandler "groble-service/internal/handlers/payout"
	settlementHandler "groble-service/internal/handlers/settlement"
	subscriptionHandler "groble-service/internal/handlers/subscription"
	"groble-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler         *authHandler.AuthHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	SettlementHandler   *settlementHandler.SettlementHandler
	FeePolicyHandler    *feePolicyHandler.FeePolicyHandler
	PayoutHandler       *payoutHandler.PayoutHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.POST("/admins", h.AuthMiddleware.RequireRole("super_admin"), h.AuthHandler.CreateAdmin)
	}

	// ==================== Webhooks ====================
	// Payple posts transfer results here, no bearer auth.
	api.POST("/webhooks/payple/transfer", h.PayoutHandler.TransferResultWebhook)

	// ==================== Subscriptions ====================
	subscriptions := api.Group("/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.POST("", h.SubscriptionHandler.ActivateSubscription)
		subscriptions.GET("", h.SubscriptionHandler.ListSubscriptions)
		subscriptions.GET("/:id", h.SubscriptionHandler.GetSubscription)
		subscriptions.POST("/:id/renew", h.SubscriptionHandler.RenewSubscription)
		subscriptions.POST("/:id/cancel", h.SubscriptionHandler.CancelSubscription)
		subscriptions.POST("/:id/resume", h.SubscriptionHandler.ResumeSubscription)
		subscriptions.POST("/:id/billing-attempt", h.AuthMiddleware.RequireRole("admin", "super_admin"), h.SubscriptionHandler.TriggerBilling)
	}

	// ==================== Settlements ====================
	settlements := api.Group("/settlements")
	settlements.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		settlements.POST("", h.SettlementHandler.BuildSettlement)
		settlements.GET("", h.SettlementHandler.ListSettlements)
		settlements.GET("/:id", h.SettlementHandler.GetSettlement)
		settlements.POST("/approve", h.SettlementHandler.ApproveSettlements)
	}

	// ==================== Payouts ====================
	payouts := api.Group("/payouts")
	payouts.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		payouts.POST("/execute", h.PayoutHandler.ExecutePayouts)
	}

	// ==================== Fee Policies ====================
	policies := api.Group("/fee-policies")
	policies.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		policies.POST("", h.FeePolicyHandler.CreateFeePolicy)
		policies.GET("", h.FeePolicyHandler.ListFeePolicies)
		policies.GET("/effective", h.FeePolicyHandler.GetEffectiveFeePolicy)
	}
}
