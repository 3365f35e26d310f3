package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/service"
	"go.uber.org/zap"
)

type DiscountHandler struct {
	service service.DiscountService
	logger  *zap.Logger
}

func NewDiscountHandler(service service.DiscountService, logger *zap.Logger) *DiscountHandler {
	return &DiscountHandler{
		service: service,
		logger:  logger,
	}
}

type ValidateCodeRequest struct {
	Code    string `json:"code" binding:"required"`
	LevelID int64  `json:"level_id" binding:"required"`
	UserID  int64  `json:"user_id"`
}

type TrackUsageRequest struct {
	CodeID  int64 `json:"code_id" binding:"required"`
	UserID  int64 `json:"user_id" binding:"required"`
	OrderID int64 `json:"order_id" binding:"required"`
}

// ValidateCode godoc
// @Summary Validate a discount code for a membership level
// @Description Runs the eligibility checks in order and, when valid, returns the checkout quote: trial, first-payment-only flag, recurring discount, initial payment and due today
// @Tags discount-codes
// @Accept json
// @Produce json
// @Param request body ValidateCodeRequest true "Validation request"
// @Success 200 {object} models.CheckoutQuote
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} models.CheckoutQuote
// @Router /api/v1/discount-codes/validate [post]
func (h *DiscountHandler) ValidateCode(c *gin.Context) {
	var req ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), req.Code, req.LevelID, req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrLevelNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "level_not_found",
				Message: "Membership level not found",
			})
			return
		}
		h.logger.Error("Failed to validate discount code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to validate discount code",
		})
		return
	}

	// Причина отказа не скрывается: коды скидок - не security граница
	if !quote.Valid {
		c.JSON(http.StatusUnprocessableEntity, quote)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// TrackUsage godoc
// @Summary Record discount code usage for a confirmed order
// @Description Called once per confirmed order; a duplicate (code_id, order_id) pair is a no-op
// @Tags discount-codes
// @Accept json
// @Produce json
// @Param request body TrackUsageRequest true "Usage record"
// @Success 204 {object} nil
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/discount-codes/track [post]
func (h *DiscountHandler) TrackUsage(c *gin.Context) {
	var req TrackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	err := h.service.TrackUsage(c.Request.Context(), req.CodeID, req.UserID, req.OrderID, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Discount code not found",
			})
		case errors.Is(err, service.ErrUsageLimitReached):
			// Проигранная гонка на границе лимита выглядит для клиента
			// так же, как синхронная проверка при валидации
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "usage_limit_reached",
				Message: "This discount code has reached its usage limit.",
			})
		default:
			h.logger.Error("Failed to track discount code usage", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to track discount code usage",
			})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
