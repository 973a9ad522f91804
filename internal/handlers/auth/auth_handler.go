// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"

	"groble-service/internal/domain/admin"
	"groble-service/internal/middleware"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/response"
	"groble-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *auth.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *auth.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Login authenticates an admin and returns an access token
func (h *AuthHandler) Login(c *gin.Context) {
	var req admin.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrUnauthorized):
			response.Error(c, http.StatusUnauthorized, "invalid email or password", nil)
		case errors.Is(err, xerrors.ErrForbidden):
			response.Error(c, http.StatusForbidden, "account is disabled", nil)
		default:
			response.Error(c, http.StatusInternalServerError, "login failed", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "login successful", result)
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req admin.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrUnauthorized):
			response.Error(c, http.StatusUnauthorized, "invalid or expired refresh token", nil)
		case errors.Is(err, xerrors.ErrForbidden):
			response.Error(c, http.StatusForbidden, "account is disabled", nil)
		default:
			response.Error(c, http.StatusInternalServerError, "token refresh failed", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", result)
}

// GetMe returns the authenticated admin's profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	adminID := middleware.MustGetAdminID(c)

	result, err := h.authService.GetAdmin(c.Request.Context(), adminID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "admin not found", err)
		return
	}

	response.Success(c, http.StatusOK, "admin retrieved", result)
}

// CreateAdmin creates a new admin account (super admin only)
func (h *AuthHandler) CreateAdmin(c *gin.Context) {
	var req admin.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.authService.CreateAdmin(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			response.Error(c, http.StatusConflict, "email already in use", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to create admin", err)
		return
	}

	response.Success(c, http.StatusCreated, "admin created", result)
}
