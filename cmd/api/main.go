package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/config"
	"github.com/khmedia/khm-api/internal/handler"
	"github.com/khmedia/khm-api/internal/middleware"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/khmedia/khm-api/internal/service"
	"github.com/khmedia/khm-api/internal/token"
	"go.uber.org/zap"
)

// Лимит запросов на валидацию кодов скидок: 20 в минуту с IP
const validateRequestsPerMinute = 20

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.InitSchema(context.Background()); err != nil {
		logger.Fatal("Failed to init database schema", zap.Error(err))
	}

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewPreviewLinkRepository(db)
	hitRepo := repository.NewPreviewHitRepository(db)
	postRepo := repository.NewPostRepository(db)
	codeRepo := repository.NewDiscountCodeRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)

	// Секрет для хэширования preview токенов: из окружения или из app_options
	secret, err := token.LoadSecret(context.Background(), cfg.Preview.Secret, repository.NewSecretRepository(db))
	if err != nil {
		logger.Fatal("Failed to load preview token secret", zap.Error(err))
	}

	// Инициализация сервисов
	previewService := service.NewPreviewLinkService(linkRepo, cacheRepo, secret, logger)
	accessService := service.NewPreviewAccessService(linkRepo, cacheRepo, secret, logger)
	analyticsService := service.NewPreviewAnalyticsService(hitRepo, logger)
	discountService := service.NewDiscountService(codeRepo, levelRepo, logger)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	validateLimiter := middleware.NewPerMinuteLimiter(validateRequestsPerMinute)

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(
		handler.NewPreviewHandler(previewService, analyticsService, cfg.App.BaseURL, logger),
		handler.NewPublicHandler(postRepo, accessService, analyticsService, logger),
		handler.NewDiscountHandler(discountService, logger),
		rateLimiter,
		validateLimiter,
		apiKeyMiddleware,
		logger,
	)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
