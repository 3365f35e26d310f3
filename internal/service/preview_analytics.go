package service

import (
	"context"
	"time"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"go.uber.org/zap"
)

// Лимит выборки просмотров по умолчанию
const defaultHitLimit = 20

// PreviewAnalyticsService журнал просмотров preview ссылок.
// Записи append-only: просмотр логируется на каждый успешный заход,
// дедупликации нет.
type PreviewAnalyticsService interface {
	LogHit(ctx context.Context, input *models.HitInput) (*models.PreviewHit, error)
	GetRecentHits(ctx context.Context, linkID int64, limit int) ([]models.PreviewHit, error)
}

type previewAnalyticsService struct {
	hitRepo repository.PreviewHitRepository
	logger  *zap.Logger
}

func NewPreviewAnalyticsService(hitRepo repository.PreviewHitRepository, logger *zap.Logger) PreviewAnalyticsService {
	return &previewAnalyticsService{
		hitRepo: hitRepo,
		logger:  logger,
	}
}

// LogHit добавляет запись просмотра. Ошибка хранилища пробрасывается:
// глотать её или нет - решение вызывающего (публичный рендер глотает).
func (s *previewAnalyticsService) LogHit(ctx context.Context, input *models.HitInput) (*models.PreviewHit, error) {
	hit := &models.PreviewHit{
		LinkID:    input.LinkID,
		ViewedAt:  time.Now(),
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Meta:      input.Meta,
	}

	if err := s.hitRepo.Insert(ctx, hit); err != nil {
		return nil, err
	}

	return hit, nil
}

// GetRecentHits возвращает просмотры, новые первыми
func (s *previewAnalyticsService) GetRecentHits(ctx context.Context, linkID int64, limit int) ([]models.PreviewHit, error) {
	if limit <= 0 {
		limit = defaultHitLimit
	}

	hits, err := s.hitRepo.RecentByLink(ctx, linkID, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []models.PreviewHit{}
	}

	return hits, nil
}
