package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihandlers "github.com/Brownie44l1/marketguard/internal/api/handlers"
	"github.com/Brownie44l1/marketguard/internal/auth"
	"github.com/Brownie44l1/marketguard/internal/clock"
	"github.com/Brownie44l1/marketguard/internal/config"
	"github.com/Brownie44l1/marketguard/internal/db"
	"github.com/Brownie44l1/marketguard/internal/distlock"
	"github.com/Brownie44l1/marketguard/internal/handlers"
	"github.com/Brownie44l1/marketguard/internal/logger"
	"github.com/Brownie44l1/marketguard/internal/metrics"
	"github.com/Brownie44l1/marketguard/internal/notification"
	"github.com/Brownie44l1/marketguard/internal/repository"
	"github.com/Brownie44l1/marketguard/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		// Logger level comes from config, so fall back to a default one here.
		logger.New("info", "").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	defer log.Sync()
	log.Info("configuration loaded", zap.String("env", cfg.Env))

	// 2. Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBUrl, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("failed to apply schema", zap.Error(err))
	}

	// 3. Redis-backed per-user critical sections
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	lockOpts := distlock.DefaultOptions()
	lockOpts.TTL = cfg.SessionLockTTL
	locker := distlock.NewLocker(rdb, "session-lock:", lockOpts, log)
	if err := locker.Ping(ctx); err != nil {
		log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	// 4. Repositories and delivery
	verificationRepo := repository.NewVerificationRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	lockRepo := repository.NewSystemLockRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	dispatcher := notification.NewDispatcher(log,
		notification.NewSMTPEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom),
		notification.NewSMSChannel(notification.SMSOptions{
			GatewayURL: cfg.SMSGatewayURL,
			APIKey:     cfg.SMSAPIKey,
			Sender:     cfg.SMSSender,
			DryRun:     cfg.SMSDryRun,
		}, &http.Client{Timeout: 10 * time.Second}, log),
	)

	// 5. Services
	clk := clock.Real{}
	verificationService := service.NewVerificationService(
		verificationRepo,
		userRepo,
		dispatcher,
		auth.NewCodeHasher(cfg.OTPHashCost),
		clk,
		service.VerificationConfig{CodeTTL: cfg.OTPTTL, PhoneCountryCode: cfg.PhoneCountryCode},
		log,
	)
	lockService := service.NewSystemLockService(lockRepo, clk, cfg.LockKey, cfg.LockDelay, log)
	if err := lockService.Provision(ctx); err != nil {
		log.Fatal("failed to provision system lock", zap.Error(err))
	}
	sessionGuard := service.NewSessionGuard(sessionRepo, locker, clk, cfg.SessionSettleDelay, log)

	// 6. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metricsRegistry := metrics.NewRegistry()
	router := gin.New()
	router.Use(gin.Recovery(), metricsRegistry.GinMiddleware())
	metricsRegistry.RegisterRoutes(router)

	authn := handlers.NewAuthenticator(cfg.JWTSecret, sessionGuard, log)
	apihandlers.NewHealthHandler(map[string]apihandlers.Pinger{
		"database": pool,
		"redis":    locker,
	}).RegisterRoutes(router)
	handlers.NewVerificationHandler(verificationService, log).RegisterRoutes(router, authn)
	handlers.NewSystemLockHandler(lockService, log).RegisterRoutes(router, authn)
	handlers.NewSessionHandler(sessionGuard, userRepo, log).RegisterRoutes(router, authn)

	// 7. Start server with graceful shutdown
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
