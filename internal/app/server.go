// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"groble-service/internal/config"
	"groble-service/internal/db"
	authHandler "groble-service/internal/handlers/auth"
	feePolicyHandler "groble-service/internal/handlers/feepolicy"
	payoutHandler "groble-service/internal/handlers/payout"
	settlementHandler "groble-service/internal/handlers/settlement"
	subscriptionHandler "groble-service/internal/handlers/subscription"
	"groble-service/internal/middleware"
	"groble-service/internal/pkg/jwt"
	"groble-service/internal/pkg/lease"
	"groble-service/internal/pkg/payple"
	"groble-service/internal/repository/postgres"
	"groble-service/internal/scheduler"
	authService "groble-service/internal/service/auth"
	billingService "groble-service/internal/service/billing"
	payoutService "groble-service/internal/service/payout"
	settlementService "groble-service/internal/service/settlement"
	subscriptionService "groble-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg       config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	scheduler *scheduler.Scheduler
	auth      *authService.AuthService
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Payple client -----
	paypleClient := payple.NewClient(s.cfg.PaypleBaseURL, s.cfg.PaypleCustID, s.cfg.PaypleCustKey)

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	adminRepo := postgres.NewAdminRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	feePolicyRepo := postgres.NewFeePolicyRepository(pool)
	settlementRepo := postgres.NewSettlementRepository(pool)
	attemptRepo := postgres.NewPayoutAttemptRepository(pool)

	// ----- Services -----
	auth := authService.NewAuthService(adminRepo, jwtManager, logger)
	s.auth = auth

	leases := lease.NewManager(redisClient, s.cfg.BillingLeaseTTL)
	billing := billingService.NewService(paypleClient, subscriptionRepo, leases, billingService.Config{
		RetryIntervalMinutes: s.cfg.BillingRetryIntervalMinutes,
		GraceDays:            s.cfg.BillingGraceDays,
		MaxRetries:           s.cfg.BillingMaxRetries,
	}, logger)

	payouts := payoutService.NewService(paypleClient, settlementRepo, attemptRepo, logger)
	settlements := settlementService.NewService(dbWrapper, settlementRepo, feePolicyRepo, payouts, logger)
	subscriptions := subscriptionService.NewService(subscriptionRepo, logger)

	// ----- Initialize Super Admin -----
	if err := s.initializeSuperAdmin(); err != nil {
		logger.Error("failed to initialize super admin", zap.Error(err))
		// Don't fail startup, just log the error
	}

	// ----- Scheduler -----
	s.scheduler = scheduler.New(logger)
	err = s.scheduler.Register(scheduler.Config{
		BillingSpec: s.cfg.BillingCronSpec,
		PayoutSpec:  s.cfg.PayoutCronSpec,
	}, billing, settlementRepo, payouts)
	if err != nil {
		return fmt.Errorf("failed to register scheduled jobs: %w", err)
	}
	s.scheduler.Start()

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(auth, logger)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(subscriptions, billing)
	settlementHandlerInst := settlementHandler.NewSettlementHandler(settlements)
	feePolicyHandlerInst := feePolicyHandler.NewFeePolicyHandler(settlements)
	payoutHandlerInst := payoutHandler.NewPayoutHandler(payouts, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(auth)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:         authHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		SettlementHandler:   settlementHandlerInst,
		FeePolicyHandler:    feePolicyHandlerInst,
		PayoutHandler:       payoutHandlerInst,
		AuthMiddleware:      authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown stops the scheduler and waits briefly for running jobs.
func (s *Server) Shutdown(ctx context.Context) {
	if s.scheduler == nil {
		return
	}

	done := s.scheduler.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler jobs did not finish before shutdown deadline")
	}
}

// initializeSuperAdmin creates super admin if it doesn't exist
func (s *Server) initializeSuperAdmin() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	email := s.cfg.SuperAdminEmail
	password := s.cfg.SuperAdminPassword
	fullName := s.cfg.SuperAdminName

	if email == "" || password == "" {
		s.logger.Warn("super admin credentials not configured, skipping bootstrap")
		return nil
	}
	if fullName == "" {
		fullName = "Super Administrator"
	}

	if len(password) < 8 {
		return fmt.Errorf("super admin password must be at least 8 characters")
	}

	if err := s.auth.EnsureSuperAdminExists(ctx, email, password, fullName); err != nil {
		return fmt.Errorf("failed to ensure super admin exists: %w", err)
	}

	return nil
}
