package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/config"
	"github.com/khmedia/khm-api/internal/handler"
	"github.com/khmedia/khm-api/internal/middleware"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/khmedia/khm-api/internal/service"
	"github.com/khmedia/khm-api/internal/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestMain настраивает тестовый режим gin
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// TestEnv хранит окружение для интеграционных тестов
type TestEnv struct {
	router         *gin.Engine
	postRepo       repository.PostRepository
	codeRepo       repository.DiscountCodeRepository
	levelRepo      repository.LevelRepository
	dbContainer    testcontainers.Container
	redisContainer testcontainers.Container
	db             *repository.PostgresDB
	redis          *repository.RedisDB
}

// setupTestEnv создаёт тестовое окружение с PostgreSQL и Redis контейнерами
func setupTestEnv(t *testing.T) *TestEnv {
	ctx := t.Context()

	// Запускаем контейнер PostgreSQL
	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("khmapi"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	// Запускаем контейнер Redis
	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
	)
	require.NoError(t, err)

	// Получаем данные для подключения
	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	// Создаём подключение к БД
	db, err := repository.NewPostgresDB(config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "khmapi",
	})
	require.NoError(t, err)

	require.NoError(t, db.InitSchema(ctx))

	// Создаём подключение к Redis
	redisClient, err := repository.NewRedisClient(config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)

	// Инициализируем репозитории
	linkRepo := repository.NewPreviewLinkRepository(db)
	hitRepo := repository.NewPreviewHitRepository(db)
	postRepo := repository.NewPostRepository(db)
	codeRepo := repository.NewDiscountCodeRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	logger, _ := zap.NewDevelopment()

	// Секрет выпускается через app_options, как в проде
	secret, err := token.LoadSecret(ctx, "", repository.NewSecretRepository(db))
	require.NoError(t, err)

	previewService := service.NewPreviewLinkService(linkRepo, cacheRepo, secret, logger)
	accessService := service.NewPreviewAccessService(linkRepo, cacheRepo, secret, logger)
	analyticsService := service.NewPreviewAnalyticsService(hitRepo, logger)
	discountService := service.NewDiscountService(codeRepo, levelRepo, logger)

	// Настраиваем роутер с высоким лимитом для тестов
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		CleanupInterval:   time.Minute,
	})
	validateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		CleanupInterval:   time.Minute,
	})

	router := handler.NewRouter(
		handler.NewPreviewHandler(previewService, analyticsService, "http://localhost:8080", logger),
		handler.NewPublicHandler(postRepo, accessService, analyticsService, logger),
		handler.NewDiscountHandler(discountService, logger),
		rateLimiter,
		validateLimiter,
		nil, // без API key для тестов
		logger,
	)

	return &TestEnv{
		router:         router,
		postRepo:       postRepo,
		codeRepo:       codeRepo,
		levelRepo:      levelRepo,
		dbContainer:    dbContainer,
		redisContainer: redisContainer,
		db:             db,
		redis:          redisClient,
	}
}

// teardown очищает ресурсы после теста
func (env *TestEnv) teardown(t *testing.T) {
	env.db.Close()
	env.redis.Close()

	ctx := t.Context()
	if env.dbContainer != nil {
		env.dbContainer.Terminate(ctx)
	}
	if env.redisContainer != nil {
		env.redisContainer.Terminate(ctx)
	}
}

func (env *TestEnv) doJSON(method, url string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)
	return w
}

// TestIntegration_PreviewFlow тестирует полный жизненный цикл preview ссылки:
// выпуск, доступ по токену, журнал просмотров, отзыв
func TestIntegration_PreviewFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	ctx := context.Background()

	// Черновик в БД
	post := &models.Post{Title: "Секретный анонс", Body: "Текст", Status: models.PostStatusDraft}
	require.NoError(t, env.postRepo.Insert(ctx, post))

	// Без токена черновик невидим
	t.Run("черновик без токена недоступен", func(t *testing.T) {
		w := env.doJSON("GET", fmt.Sprintf("/content/%d", post.ID), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	// Выпускаем ссылку через API
	var created handler.CreatePreviewLinkResponse
	t.Run("выпуск preview ссылки", func(t *testing.T) {
		w := env.doJSON("POST", "/api/v1/preview-links", handler.CreatePreviewLinkRequest{
			ContentID: post.ID,
			UserID:    1,
			Hours:     2,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.Token)
	})

	// По токену черновик отдаётся как опубликованный
	t.Run("доступ по валидному токену", func(t *testing.T) {
		w := env.doJSON("GET", fmt.Sprintf("/content/%d?preview_token=%s", post.ID, created.Token), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp handler.PostResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Preview)
		assert.Equal(t, models.PostStatusPublished, resp.Post.Status)
	})

	// Просмотр попал в журнал
	t.Run("просмотр в журнале", func(t *testing.T) {
		w := env.doJSON("GET", fmt.Sprintf("/api/v1/preview-links/%d", created.ID), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var details handler.PreviewLinkDetailsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
		assert.Len(t, details.Hits, 1)
	})

	// Невалидный токен - жёсткий 403
	t.Run("невалидный токен", func(t *testing.T) {
		w := env.doJSON("GET", fmt.Sprintf("/content/%d?preview_token=%s", post.ID, "fabricated"), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	// Отзыв действует немедленно
	t.Run("отзыв ссылки", func(t *testing.T) {
		w := env.doJSON("DELETE", fmt.Sprintf("/api/v1/preview-links/%d", created.ID), nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.doJSON("GET", fmt.Sprintf("/content/%d?preview_token=%s", post.ID, created.Token), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

// TestIntegration_PreviewExtend тестирует продление истёкшей ссылки
func TestIntegration_PreviewExtend(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	ctx := context.Background()
	post := &models.Post{Title: "Анонс", Status: models.PostStatusDraft}
	require.NoError(t, env.postRepo.Insert(ctx, post))

	var created handler.CreatePreviewLinkResponse
	w := env.doJSON("POST", "/api/v1/preview-links", handler.CreatePreviewLinkRequest{
		ContentID: post.ID,
		UserID:    1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.doJSON("POST", fmt.Sprintf("/api/v1/preview-links/%d/extend", created.ID), handler.ExtendPreviewLinkRequest{Hours: 72})
	require.Equal(t, http.StatusOK, w.Code)

	// Активная ссылка поста - всё ещё эта
	w = env.doJSON("GET", fmt.Sprintf("/api/v1/content/%d/preview-link", post.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var details handler.PreviewLinkDetailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	require.NotNil(t, details.Link)
	assert.Equal(t, created.ID, details.Link.ID)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), details.Link.ExpiresAt, time.Minute)
}

// TestIntegration_DiscountFlow тестирует валидацию кода и учёт использований
func TestIntegration_DiscountFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	ctx := context.Background()

	level := &models.MembershipLevel{
		Name:           "Pro",
		InitialPayment: decimal.RequireFromString("50.00"),
		BillingAmount:  decimal.RequireFromString("29.99"),
		CyclePeriod:    "month",
	}
	require.NoError(t, env.levelRepo.Insert(ctx, level))

	usageLimit := int64(1)
	recurring := decimal.NewFromInt(10)
	code := &models.DiscountCode{
		Code:                    "LAUNCH20",
		Type:                    models.DiscountTypePercent,
		Value:                   decimal.NewFromInt(20),
		Status:                  models.CodeStatusActive,
		UsageLimit:              &usageLimit,
		FirstPaymentOnly:        true,
		RecurringDiscountType:   models.RecurringDiscountTypePercent,
		RecurringDiscountAmount: &recurring,
	}
	require.NoError(t, env.codeRepo.Insert(ctx, code))

	// Валидация возвращает полный quote
	t.Run("валидация кода", func(t *testing.T) {
		w := env.doJSON("POST", "/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
			Code:    "LAUNCH20",
			LevelID: level.ID,
			UserID:  1,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var quote models.CheckoutQuote
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
		assert.True(t, quote.Valid)
		assert.True(t, quote.DueToday.Equal(decimal.RequireFromString("40")), "due_today: %s", quote.DueToday)
		assert.True(t, quote.RecurringAmount.Equal(decimal.RequireFromString("26.99")), "recurring: %s", quote.RecurringAmount)
	})

	// Регистр значим
	t.Run("код с другим регистром невалиден", func(t *testing.T) {
		w := env.doJSON("POST", "/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
			Code:    "launch20",
			LevelID: level.ID,
			UserID:  1,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	// Учёт использования: дубль заказа - no-op, лимит соблюдается
	t.Run("учёт использований", func(t *testing.T) {
		req := handler.TrackUsageRequest{CodeID: code.ID, UserID: 1, OrderID: 500}

		w := env.doJSON("POST", "/api/v1/discount-codes/track", req)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.doJSON("POST", "/api/v1/discount-codes/track", req)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.doJSON("POST", "/api/v1/discount-codes/track", handler.TrackUsageRequest{CodeID: code.ID, UserID: 2, OrderID: 501})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	// После исчерпания лимита код невалиден и на валидации
	t.Run("исчерпанный код невалиден", func(t *testing.T) {
		w := env.doJSON("POST", "/api/v1/discount-codes/validate", handler.ValidateCodeRequest{
			Code:    "LAUNCH20",
			LevelID: level.ID,
			UserID:  3,
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var quote models.CheckoutQuote
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
		assert.Equal(t, "This discount code has reached its usage limit.", quote.Message)
	})
}

// TestIntegration_HealthCheck тестирует endpoint проверки здоровья
func TestIntegration_HealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	w := env.doJSON("GET", "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
