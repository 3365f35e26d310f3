package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/khmedia/khm-api/internal/token"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrLinkNotFound = errors.New("preview ссылка не найдена")
)

// PreviewLinkService интерфейс управления preview ссылками.
// Авторизацию сервис не выполняет: проверка права редактировать контент
// лежит на вызывающем слое (REST/admin).
type PreviewLinkService interface {
	CreateLink(ctx context.Context, input *models.CreatePreviewLinkInput) (*models.IssuedLink, error)
	GetActiveLink(ctx context.Context, contentID int64) (*models.PreviewLink, error)
	GetLink(ctx context.Context, id int64) (*models.PreviewLink, error)
	RevokeLink(ctx context.Context, id int64) error
	ExtendLink(ctx context.Context, id int64, expiresAt time.Time) (*models.PreviewLink, error)
}

type previewLinkService struct {
	linkRepo  repository.PreviewLinkRepository
	cacheRepo repository.CacheRepository
	secret    []byte
	logger    *zap.Logger
}

// NewPreviewLinkService создаёт новый экземпляр сервиса
func NewPreviewLinkService(
	linkRepo repository.PreviewLinkRepository,
	cacheRepo repository.CacheRepository,
	secret []byte,
	logger *zap.Logger,
) PreviewLinkService {
	return &previewLinkService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		secret:    secret,
		logger:    logger,
	}
}

// CreateLink выпускает новую ссылку и возвращает сырой токен ровно один раз.
// Токен нигде не хранится: в БД попадает только его keyed хэш, потерянный
// токен восстановить нельзя - только выпустить новую ссылку.
// Старые активные ссылки этого контента не отзываются: несколько
// одновременно действующих ссылок на один пост допустимы намеренно.
func (s *previewLinkService) CreateLink(ctx context.Context, input *models.CreatePreviewLinkInput) (*models.IssuedLink, error) {
	raw, err := token.Generate(token.DefaultByteLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate preview token: %w", err)
	}

	link := &models.PreviewLink{
		ContentID: input.ContentID,
		TokenHash: token.HashToken(raw, s.secret),
		Status:    models.LinkStatusActive,
		ExpiresAt: input.ExpiresAt,
		CreatedBy: input.UserID,
		Meta:      input.Meta,
		CreatedAt: time.Now(),
	}

	if err := s.linkRepo.Insert(ctx, link); err != nil {
		return nil, err
	}

	// Кэширование: TTL до истечения ссылки
	if ttl := time.Until(link.ExpiresAt); ttl > 0 {
		if err := s.cacheRepo.Set(ctx, link.TokenHash, link, ttl); err != nil {
			s.logger.Warn("Не удалось закэшировать preview ссылку", zap.Int64("link_id", link.ID), zap.Error(err))
		}
	}

	return &models.IssuedLink{Link: link, Token: raw}, nil
}

// GetActiveLink возвращает самую свежую активную ссылку контента или ErrLinkNotFound
func (s *previewLinkService) GetActiveLink(ctx context.Context, contentID int64) (*models.PreviewLink, error) {
	link, err := s.linkRepo.FindActiveByContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s *previewLinkService) GetLink(ctx context.Context, id int64) (*models.PreviewLink, error) {
	link, err := s.linkRepo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}

// RevokeLink переводит ссылку в revoked. Идемпотентен: повторный отзыв
// уже отозванной ссылки - успешный no-op.
func (s *previewLinkService) RevokeLink(ctx context.Context, id int64) error {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return err
	}

	if link.Status == models.LinkStatusRevoked {
		return nil
	}

	if err := s.linkRepo.UpdateStatus(ctx, id, models.LinkStatusRevoked); err != nil {
		return err
	}

	// Инвалидация кэша, чтобы отзыв действовал немедленно
	if err := s.cacheRepo.Delete(ctx, link.TokenHash); err != nil {
		s.logger.Warn("Не удалось удалить ссылку из кэша", zap.Int64("link_id", id), zap.Error(err))
	}

	return nil
}

// ExtendLink сдвигает срок действия. Новый срок не валидируется:
// сервис сознательно разрешает и укорачивание, и прошедшие даты
// (открытый продуктовый вопрос, поведение сохранено как в админке).
func (s *previewLinkService) ExtendLink(ctx context.Context, id int64, expiresAt time.Time) (*models.PreviewLink, error) {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.linkRepo.UpdateExpiration(ctx, id, expiresAt); err != nil {
		return nil, err
	}

	if err := s.cacheRepo.Delete(ctx, link.TokenHash); err != nil {
		s.logger.Warn("Не удалось удалить ссылку из кэша", zap.Int64("link_id", id), zap.Error(err))
	}

	link.ExpiresAt = expiresAt
	return link, nil
}
