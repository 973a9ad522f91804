// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groble-service/internal/domain/admin"
	xerrors "groble-service/internal/pkg/errors"
	"groble-service/internal/pkg/jwt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	admins     admin.Repository
	jwtManager *jwt.Manager
	logger     *zap.Logger
}

func NewAuthService(admins admin.Repository, jwtManager *jwt.Manager, logger *zap.Logger) *AuthService {
	return &AuthService{
		admins:     admins,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// Login verifies admin credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, req *admin.LoginRequest) (*admin.LoginResponse, error) {
	a, err := s.admins.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	if !a.IsActive {
		return nil, xerrors.ErrForbidden
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("admin login rejected",
			zap.String("email", req.Email),
		)
		return nil, xerrors.ErrUnauthorized
	}

	token, _, err := s.jwtManager.Generator.GenerateAccessToken(a.ID, a.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refresh, _, err := s.jwtManager.Generator.GenerateRefreshToken(a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.admins.UpdateLastLogin(ctx, a.ID); err != nil {
		// Login still succeeds, the timestamp is informational.
		s.logger.Warn("failed to update last login", zap.Int64("admin_id", a.ID), zap.Error(err))
	}

	s.logger.Info("admin logged in",
		zap.Int64("admin_id", a.ID),
		zap.String("email", a.Email),
	)

	return &admin.LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.jwtManager.Generator.Ttl),
		Admin:        a.Info(),
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The admin
// row is reloaded so a deactivated account cannot keep refreshing, and the
// access token carries the roles as they are now, not as they were at login.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*admin.LoginResponse, error) {
	claims, err := s.jwtManager.Verifier.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, xerrors.ErrUnauthorized
	}

	a, err := s.admins.FindByID(ctx, claims.AdminID)
	if err != nil {
		return nil, xerrors.ErrUnauthorized
	}
	if !a.IsActive {
		return nil, xerrors.ErrForbidden
	}

	token, _, err := s.jwtManager.Generator.GenerateAccessToken(a.ID, a.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refresh, _, err := s.jwtManager.Generator.GenerateRefreshToken(a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.logger.Info("admin token refreshed", zap.Int64("admin_id", a.ID))

	return &admin.LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.jwtManager.Generator.Ttl),
		Admin:        a.Info(),
	}, nil
}

// ValidateToken verifies an access token and loads the admin it names.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*admin.Admin, *jwt.Claims, error) {
	claims, err := s.jwtManager.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, nil, xerrors.ErrUnauthorized
	}

	a, err := s.admins.FindByID(ctx, claims.AdminID)
	if err != nil {
		return nil, nil, xerrors.ErrUnauthorized
	}
	if !a.IsActive {
		return nil, nil, xerrors.ErrForbidden
	}

	return a, claims, nil
}

// GetAdmin returns the public profile for one admin.
func (s *AuthService) GetAdmin(ctx context.Context, id int64) (*admin.AdminInfo, error) {
	a, err := s.admins.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	info := a.Info()
	return &info, nil
}

// CreateAdmin creates a new admin account. Only a super admin may call
// this; the handler enforces that.
func (s *AuthService) CreateAdmin(ctx context.Context, req *admin.CreateAdminRequest) (*admin.AdminInfo, error) {
	exists, err := s.admins.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, xerrors.ErrConflict
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{"admin"}
	}

	created, err := s.admins.Create(ctx, &admin.Admin{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Roles:        roles,
		IsActive:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("admin created",
		zap.Int64("admin_id", created.ID),
		zap.String("email", created.Email),
		zap.Strings("roles", created.Roles),
	)

	info := created.Info()
	return &info, nil
}

// EnsureSuperAdminExists creates a super admin account if none exists (called on startup)
func (s *AuthService) EnsureSuperAdminExists(ctx context.Context, email, password, fullName string) error {
	if email == "" || password == "" || fullName == "" {
		return fmt.Errorf("super admin email, password, and name must be provided via environment variables")
	}

	exists, err := s.admins.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check super admin existence: %w", err)
	}
	if exists {
		s.logger.Info("super admin already exists, skipping creation")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.admins.Create(ctx, &admin.Admin{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hashed),
		Roles:        []string{"super_admin"},
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created successfully",
		zap.String("email", email),
		zap.Int64("admin_id", created.ID),
	)
	return nil
}
