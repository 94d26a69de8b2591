// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"lubripro-service/internal/config"
	"lubripro-service/internal/db"
	accountHandler "lubripro-service/internal/handlers/account"
	couponHandler "lubripro-service/internal/handlers/coupon"
	distributorHandler "lubripro-service/internal/handlers/distributor"
	planHandler "lubripro-service/internal/handlers/plan"
	renewalHandler "lubripro-service/internal/handlers/renewal"
	"lubripro-service/internal/middleware"
	"lubripro-service/internal/repository/postgres"
	couponUsecase "lubripro-service/internal/service/coupon"
	distributorUsecase "lubripro-service/internal/service/distributor"
	entitlementUsecase "lubripro-service/internal/service/entitlement"
	"lubripro-service/internal/service/planregistry"
	renewalUsecase "lubripro-service/internal/service/renewal"
	usageUsecase "lubripro-service/internal/service/usage"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	cron   *cron.Cron
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Plan catalogue cache -----
	// Redis when configured, process-local otherwise.
	var planCache planregistry.Cache = planregistry.NewMemoryCache(s.cfg.CatalogTTL)
	if s.cfg.RedisAddr != "" {
		redisClient, err := db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			DB:       0,
			PoolSize: 10,
		})
		if err != nil {
			logger.Warn("redis unavailable, using in-memory plan cache", zap.Error(err))
		} else {
			planCache = planregistry.NewRedisCache(redisClient, s.cfg.CatalogTTL, logger)
			log.Println("[REDIS] ✅ Connected successfully")
		}
	}

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	planRepo := postgres.NewPlanRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	distributorRepo := postgres.NewDistributorRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	historyRepo := postgres.NewHistoryRepository(pool)

	// ----- Services (Usecases) -----
	registry := planregistry.NewRegistry(planRepo, accountRepo, historyRepo, planCache, logger)
	entitlementService := entitlementUsecase.NewService(
		accountRepo,
		registry,
		paymentRepo,
		historyRepo,
		dbWrapper,
		logger,
	)
	meter := usageUsecase.NewMeter(accountRepo, registry, logger)
	couponService := couponUsecase.NewService(
		couponRepo,
		accountRepo,
		distributorRepo,
		paymentRepo,
		historyRepo,
		dbWrapper,
		logger,
	)
	distributorService := distributorUsecase.NewService(distributorRepo, couponRepo, dbWrapper, logger)
	processor := renewalUsecase.NewProcessor(accountRepo, entitlementService, historyRepo, logger)

	// ----- Scheduled renewal batch -----
	if s.cfg.RenewalCronSpec != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.cfg.RenewalCronSpec, func() {
			result, err := processor.ProcessDue(context.Background(), time.Now())
			if err != nil {
				logger.Error("scheduled renewal batch failed", zap.Error(err))
				return
			}
			logger.Info("scheduled renewal batch finished",
				zap.Int("processed", result.ProcessedCount),
				zap.Int("renewed", result.RenewedCount),
				zap.Int("expired", result.ExpiredCount),
				zap.Int("errors", result.ErrorCount))
		})
		if err != nil {
			return fmt.Errorf("invalid renewal cron spec %q: %w", s.cfg.RenewalCronSpec, err)
		}
		s.cron.Start()
	}

	// ----- Handlers -----
	accountHandlerInst := accountHandler.NewAccountHandler(entitlementService, meter)
	planHandlerInst := planHandler.NewPlanHandler(registry)
	couponHandlerInst := couponHandler.NewCouponHandler(couponService)
	distributorHandlerInst := distributorHandler.NewDistributorHandler(distributorService)
	renewalHandlerInst := renewalHandler.NewRenewalHandler(processor, couponService)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.JWTSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AccountHandler:     accountHandlerInst,
		PlanHandler:        planHandlerInst,
		CouponHandler:      couponHandlerInst,
		DistributorHandler: distributorHandlerInst,
		RenewalHandler:     renewalHandlerInst,
		AuthMiddleware:     authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Stop halts background work. The HTTP listener dies with the process.
func (s *Server) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
