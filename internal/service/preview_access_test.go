package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/service"
	"github.com/khmedia/khm-api/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupAccessService собирает связку выпуск + проверка на общих моках
func setupAccessService() (service.PreviewLinkService, service.PreviewAccessService, *mocks.MockCacheRepository) {
	linkRepo := mocks.NewMockPreviewLinkRepository()
	cacheRepo := mocks.NewMockCacheRepository()
	logger, _ := zap.NewDevelopment()
	previewService := service.NewPreviewLinkService(linkRepo, cacheRepo, testSecret, logger)
	accessService := service.NewPreviewAccessService(linkRepo, cacheRepo, testSecret, logger)
	return previewService, accessService, cacheRepo
}

// TestPreviewAccess_Granted проверяет успешный доступ по свежевыпущенному токену
func TestPreviewAccess_Granted(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	link, err := accessService.Verify(ctx, 42, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Link.ID, link.ID)
}

// TestPreviewAccess_Granted_CacheMiss проверяет доступ после потери кэша:
// проверка обязана добраться до БД
func TestPreviewAccess_Granted_CacheMiss(t *testing.T) {
	previewService, accessService, cacheRepo := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	cacheRepo.Reset()

	link, err := accessService.Verify(ctx, 42, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Link.ID, link.ID)
}

// TestPreviewAccess_Denied_UnknownToken проверяет отказ по выдуманному токену
func TestPreviewAccess_Denied_UnknownToken(t *testing.T) {
	_, accessService, _ := setupAccessService()

	link, err := accessService.Verify(context.Background(), 42, "fabricated-token")
	assert.ErrorIs(t, err, service.ErrPreviewDenied)
	assert.Nil(t, link)
}

// TestPreviewAccess_Denied_WrongContent проверяет отказ по чужому content id.
// Валидный токен одного поста не открывает другой
func TestPreviewAccess_Denied_WrongContent(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = accessService.Verify(ctx, 43, issued.Token)
	assert.ErrorIs(t, err, service.ErrPreviewDenied)
}

// TestPreviewAccess_Denied_Revoked проверяет, что отзыв действует немедленно:
// токен, работавший минуту назад, после отзыва - жёсткий отказ
func TestPreviewAccess_Denied_Revoked(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// До отзыва доступ есть
	_, err = accessService.Verify(ctx, 42, issued.Token)
	require.NoError(t, err)

	require.NoError(t, previewService.RevokeLink(ctx, issued.Link.ID))

	_, err = accessService.Verify(ctx, 42, issued.Token)
	assert.ErrorIs(t, err, service.ErrPreviewDenied)
}

// TestPreviewAccess_Denied_Expired проверяет отказ по истёкшей ссылке
func TestPreviewAccess_Denied_Expired(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = accessService.Verify(ctx, 42, issued.Token)
	assert.ErrorIs(t, err, service.ErrPreviewDenied)
}

// TestPreviewAccess_ExtendRestoresAccess проверяет, что продление
// возвращает доступ истёкшей ссылке
func TestPreviewAccess_ExtendRestoresAccess(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	issued, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 42,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = accessService.Verify(ctx, 42, issued.Token)
	require.ErrorIs(t, err, service.ErrPreviewDenied)

	_, err = previewService.ExtendLink(ctx, issued.Link.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = accessService.Verify(ctx, 42, issued.Token)
	assert.NoError(t, err)
}

// TestPreviewAccess_UniformDenial проверяет, что все причины отказа
// снаружи неразличимы: одна и та же ошибка на любой сценарий
func TestPreviewAccess_UniformDenial(t *testing.T) {
	previewService, accessService, _ := setupAccessService()
	ctx := context.Background()

	expired, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	revoked, err := previewService.CreateLink(ctx, &models.CreatePreviewLinkInput{
		ContentID: 2,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, previewService.RevokeLink(ctx, revoked.Link.ID))

	scenarios := []struct {
		name      string
		contentID int64
		token     string
	}{
		{"несуществующий токен", 1, "no-such-token"},
		{"истёкшая ссылка", 1, expired.Token},
		{"отозванная ссылка", 2, revoked.Token},
		{"чужой content id", 3, revoked.Token},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			_, err := accessService.Verify(ctx, sc.contentID, sc.token)
			assert.ErrorIs(t, err, service.ErrPreviewDenied)
		})
	}
}

// TestPreviewAnalytics_LogHit проверяет append-only журнал просмотров
func TestPreviewAnalytics_LogHit(t *testing.T) {
	hitRepo := mocks.NewMockPreviewHitRepository()
	logger, _ := zap.NewDevelopment()
	analytics := service.NewPreviewAnalyticsService(hitRepo, logger)
	ctx := context.Background()

	// Каждый заход логируется отдельно, дедупликации нет
	for i := 0; i < 3; i++ {
		hit, err := analytics.LogHit(ctx, &models.HitInput{
			LinkID:    1,
			IP:        "192.168.1.10",
			UserAgent: "test-agent",
		})
		require.NoError(t, err)
		assert.NotZero(t, hit.ID)
	}

	assert.Equal(t, 3, hitRepo.CountByLink(1))

	hits, err := analytics.GetRecentHits(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

// TestPreviewAnalytics_LogHit_StorageError проверяет проброс ошибки хранилища
func TestPreviewAnalytics_LogHit_StorageError(t *testing.T) {
	hitRepo := mocks.NewMockPreviewHitRepository()
	hitRepo.Fail = true
	logger, _ := zap.NewDevelopment()
	analytics := service.NewPreviewAnalyticsService(hitRepo, logger)

	_, err := analytics.LogHit(context.Background(), &models.HitInput{LinkID: 1})
	assert.Error(t, err)
}

// TestPreviewAnalytics_GetRecentHits_Empty проверяет пустой журнал
func TestPreviewAnalytics_GetRecentHits_Empty(t *testing.T) {
	hitRepo := mocks.NewMockPreviewHitRepository()
	logger, _ := zap.NewDevelopment()
	analytics := service.NewPreviewAnalyticsService(hitRepo, logger)

	hits, err := analytics.GetRecentHits(context.Background(), 999, 10)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}
