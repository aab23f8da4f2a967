package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Baaaki/component-review/internal/broker"
	"github.com/Baaaki/component-review/internal/config"
	"github.com/Baaaki/component-review/internal/database"
	"github.com/Baaaki/component-review/internal/handler"
	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/router"
	"github.com/Baaaki/component-review/internal/scheduler"
	"github.com/Baaaki/component-review/internal/search"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/internal/wal"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Database migration failed", zap.Error(err))
	}

	// Audit spool
	if err := os.MkdirAll(filepath.Dir(cfg.AuditSpoolPath), 0o755); err != nil {
		logger.Log.Fatal("Failed to create spool directory", zap.Error(err))
	}
	spool, err := wal.NewWAL(cfg.AuditSpoolPath)
	if err != nil {
		logger.Log.Fatal("Failed to open audit spool", zap.Error(err))
	}
	defer spool.Close()

	// Redis is optional: without it notifications are not pushed live and
	// auth endpoints are not rate limited.
	var (
		notificationBroker broker.NotificationBroker = broker.NoopBroker{}
		rateLimiter        *middleware.RateLimiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Log.Warn("Redis not reachable at startup", zap.Error(err))
		}
		cancel()

		notificationBroker = broker.NewRedisBroker(client)
		rateLimiter = middleware.NewRateLimiter(client, "auth", middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})
	} else {
		logger.Log.Warn("REDIS_URL not set, live notifications and rate limiting disabled")
	}
	defer notificationBroker.Close()

	m := metrics.New()
	indexer := search.NewFromConfig(cfg.MeiliSearchHost, cfg.MeiliMasterKey)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	componentRepo := repository.NewComponentRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	recorder := service.NewAuditRecorder(auditRepo, spool, m)
	if replayed, err := recorder.ReplaySpool(); err != nil {
		logger.Log.Error("Audit spool replay failed", zap.Error(err))
	} else if replayed > 0 {
		logger.Log.Info("Replayed spooled audit entries", zap.Int("count", replayed))
	}

	notifier := service.NewNotifier(userRepo, notificationRepo, notificationBroker, m)
	authService := service.NewAuthService(
		db, userRepo, resetRepo, recorder, service.LogMailer{},
		cfg.JWTSecret, cfg.JWTExpiry, cfg.PasswordResetTTL, cfg.FrontendURL,
	)
	componentService := service.NewComponentService(db, componentRepo, reviewRepo, notificationRepo, recorder, notifier, indexer, m)
	reviewService := service.NewReviewService(reviewRepo, componentRepo, notifier)
	notificationService := service.NewNotificationService(notificationRepo, notificationBroker)
	userService := service.NewUserService(db, userRepo, componentRepo, reviewRepo, notificationRepo, resetRepo, auditRepo, recorder, indexer)
	auditService := service.NewAuditService(db, auditRepo, recorder)

	// Scheduled audit retention
	retention := scheduler.NewRetentionJob(auditService, cfg.AuditCleanupSchedule, cfg.AuditRetentionDays)
	if err := retention.Start(); err != nil {
		logger.Log.Fatal("Failed to schedule audit retention", zap.Error(err))
	}

	engine := router.New(router.Deps{
		Auth:           authService,
		Metrics:        m,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),

		AuthHandler:         handler.NewAuthHandler(authService, cfg.IsProduction(), cfg.JWTExpiry),
		ComponentHandler:    handler.NewComponentHandler(componentService),
		ReviewHandler:       handler.NewReviewHandler(reviewService),
		NotificationHandler: handler.NewNotificationHandler(notificationService, router.SplitOrigins(cfg.AllowedOrigins)),
		AdminHandler:        handler.NewAdminHandler(userService),
		AuditHandler:        handler.NewAuditHandler(auditService),
	})

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down")
	<-retention.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
