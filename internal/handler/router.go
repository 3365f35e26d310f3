package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/middleware"
	"go.uber.org/zap"
)

func NewRouter(
	previewHandler *PreviewHandler,
	publicHandler *PublicHandler,
	discountHandler *DiscountHandler,
	rateLimiter *middleware.RateLimiter,
	validateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.Default()

	// Request ID + логгирование каждого запроса
	router.Use(middleware.RequestID())
	router.Use(func(c *gin.Context) {
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		c.Next()
	})

	// Rate limiting для всех запросов
	router.Use(rateLimiter.Middleware())

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		// Валидация кодов доступна чекауту без API ключа, но со своим
		// жёстким лимитом на IP
		v1.POST("/discount-codes/validate", validateLimiter.Middleware(), discountHandler.ValidateCode)

		// Редакторские и внутренние эндпоинты - только с API ключом
		protected := v1.Group("")
		if apiKeyMiddleware != nil {
			protected.Use(apiKeyMiddleware)
		}
		{
			protected.POST("/preview-links", previewHandler.CreateLink)
			protected.GET("/preview-links/:id", previewHandler.GetLink)
			protected.DELETE("/preview-links/:id", previewHandler.RevokeLink)
			protected.POST("/preview-links/:id/extend", previewHandler.ExtendLink)
			protected.GET("/content/:id/preview-link", previewHandler.GetLinkByContent)

			protected.POST("/discount-codes/track", discountHandler.TrackUsage)
		}
	}

	// Публичный рендер контента (с preview_token или без) - без API key проверки
	router.GET("/content/:id", publicHandler.GetContent)

	return router
}

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
