package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/handler"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/service"
	"github.com/khmedia/khm-api/internal/service/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discountEnv тестовое окружение discount эндпоинтов
type discountEnv struct {
	router    *gin.Engine
	codeRepo  *mocks.MockDiscountCodeRepository
	levelRepo *mocks.MockLevelRepository
}

// setupDiscountEnv собирает discount эндпоинты на моках
func setupDiscountEnv() *discountEnv {
	gin.SetMode(gin.TestMode)

	codeRepo := mocks.NewMockDiscountCodeRepository()
	levelRepo := mocks.NewMockLevelRepository()
	logger, _ := zap.NewDevelopment()

	discountService := service.NewDiscountService(codeRepo, levelRepo, logger)
	discountHandler := handler.NewDiscountHandler(discountService, logger)

	router := gin.New()
	router.POST("/api/v1/discount-codes/validate", discountHandler.ValidateCode)
	router.POST("/api/v1/discount-codes/track", discountHandler.TrackUsage)

	return &discountEnv{
		router:    router,
		codeRepo:  codeRepo,
		levelRepo: levelRepo,
	}
}

func (env *discountEnv) post(url string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)
	return w
}

func (env *discountEnv) seed(t *testing.T, code *models.DiscountCode) (*models.DiscountCode, *models.MembershipLevel) {
	ctx := context.Background()

	level := &models.MembershipLevel{
		Name:           "Pro",
		InitialPayment: decimal.RequireFromString("50"),
		BillingAmount:  decimal.RequireFromString("29.99"),
		CyclePeriod:    "month",
	}
	require.NoError(t, env.levelRepo.Insert(ctx, level))
	require.NoError(t, env.codeRepo.Insert(ctx, code))
	return code, level
}

// TestDiscountHandler_Validate_Success проверяет валидный код через API
func TestDiscountHandler_Validate_Success(t *testing.T) {
	env := setupDiscountEnv()
	_, level := env.seed(t, &models.DiscountCode{
		Code:             "SAVE20",
		Type:             models.DiscountTypePercent,
		Value:            decimal.NewFromInt(20),
		Status:           models.CodeStatusActive,
		FirstPaymentOnly: true,
	})

	w := env.post("/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
		Code:    "SAVE20",
		LevelID: level.ID,
		UserID:  1,
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var quote models.CheckoutQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.True(t, quote.Valid)
	assert.Equal(t, "Discount code applied successfully.", quote.Message)
	assert.Equal(t, "SAVE20", quote.Code)
	assert.True(t, quote.DueToday.Equal(decimal.RequireFromString("40")), "due_today: %s", quote.DueToday)
}

// TestDiscountHandler_Validate_InvalidCode проверяет 422 с причиной отказа
func TestDiscountHandler_Validate_InvalidCode(t *testing.T) {
	env := setupDiscountEnv()
	_, level := env.seed(t, &models.DiscountCode{
		Code:   "SAVE20",
		Type:   models.DiscountTypePercent,
		Value:  decimal.NewFromInt(20),
		Status: models.CodeStatusInactive,
	})

	tests := []struct {
		name    string
		code    string
		message string
	}{
		{"несуществующий код", "NOPE", "Invalid discount code."},
		{"неактивный код", "SAVE20", "This discount code is not active."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post("/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
				Code:    tt.code,
				LevelID: level.ID,
				UserID:  1,
			})

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var quote models.CheckoutQuote
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
			assert.False(t, quote.Valid)
			assert.Equal(t, tt.message, quote.Message)
		})
	}
}

// TestDiscountHandler_Validate_LevelNotFound проверяет несуществующий уровень
func TestDiscountHandler_Validate_LevelNotFound(t *testing.T) {
	env := setupDiscountEnv()
	require.NoError(t, env.codeRepo.Insert(context.Background(), &models.DiscountCode{
		Code:   "SAVE20",
		Type:   models.DiscountTypePercent,
		Value:  decimal.NewFromInt(20),
		Status: models.CodeStatusActive,
	}))

	w := env.post("/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
		Code:    "SAVE20",
		LevelID: 999,
		UserID:  1,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestDiscountHandler_Validate_BadBody проверяет валидацию тела запроса
func TestDiscountHandler_Validate_BadBody(t *testing.T) {
	env := setupDiscountEnv()

	w := env.post("/api/v1/discount-codes/validate", map[string]any{"code": "SAVE20"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestDiscountHandler_Track проверяет учёт использования и идемпотентность
func TestDiscountHandler_Track(t *testing.T) {
	env := setupDiscountEnv()
	code, _ := env.seed(t, &models.DiscountCode{
		Code:       "LIMITED",
		Type:       models.DiscountTypePercent,
		Value:      decimal.NewFromInt(10),
		Status:     models.CodeStatusActive,
		UsageLimit: int64Ptr(1),
	})

	req := handler.TrackUsageRequest{CodeID: code.ID, UserID: 1, OrderID: 100}

	w := env.post("/api/v1/discount-codes/track", req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Повтор того же заказа - no-op, но тоже успех
	w = env.post("/api/v1/discount-codes/track", req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	stored, err := env.codeRepo.Find(context.Background(), code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TimesUsed)

	// Другой заказ упирается в лимит
	w = env.post("/api/v1/discount-codes/track", handler.TrackUsageRequest{CodeID: code.ID, UserID: 2, OrderID: 101})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "This discount code has reached its usage limit.")
}

// TestDiscountHandler_Track_CodeNotFound проверяет несуществующий код
func TestDiscountHandler_Track_CodeNotFound(t *testing.T) {
	env := setupDiscountEnv()

	w := env.post("/api/v1/discount-codes/track", handler.TrackUsageRequest{CodeID: 999, UserID: 1, OrderID: 100})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func int64Ptr(v int64) *int64 { return &v }
