package service

import (
	"context"
	"errors"
	"time"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/khmedia/khm-api/internal/token"
	"go.uber.org/zap"
)

// ErrPreviewDenied единственный наружный исход любой неудачной проверки.
// Отсутствие записи, чужой content id, revoked и истёкший срок снаружи
// неразличимы - иначе ответ превращается в оракул для перебора токенов.
var ErrPreviewDenied = errors.New("preview access denied")

// PreviewAccessService публичная проверка пары (content, token).
// Состояния запроса: Unchecked -> Validating -> Granted | Denied.
type PreviewAccessService interface {
	Verify(ctx context.Context, contentID int64, presentedToken string) (*models.PreviewLink, error)
}

type previewAccessService struct {
	linkRepo  repository.PreviewLinkRepository
	cacheRepo repository.CacheRepository
	secret    []byte
	logger    *zap.Logger
}

func NewPreviewAccessService(
	linkRepo repository.PreviewLinkRepository,
	cacheRepo repository.CacheRepository,
	secret []byte,
	logger *zap.Logger,
) PreviewAccessService {
	return &previewAccessService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		secret:    secret,
		logger:    logger,
	}
}

// Verify хэширует предъявленный токен, ищет запись и проверяет:
// content id совпадает, статус active, срок строго в будущем на момент
// проверки. Успех не меняет никакого состояния - флип видимости поста
// делает обработчик в рамках одного ответа.
func (s *previewAccessService) Verify(ctx context.Context, contentID int64, presentedToken string) (*models.PreviewLink, error) {
	hash := token.HashToken(presentedToken, s.secret)

	link, err := s.lookup(ctx, hash)
	if err != nil {
		if !errors.Is(err, repository.ErrLinkNotFound) {
			s.logger.Error("Сбой хранилища при проверке preview токена", zap.Error(err))
		}
		return nil, ErrPreviewDenied
	}

	if link.ContentID != contentID {
		return nil, ErrPreviewDenied
	}
	if link.Status != models.LinkStatusActive {
		return nil, ErrPreviewDenied
	}
	if link.Expired(time.Now()) {
		return nil, ErrPreviewDenied
	}

	return link, nil
}

// lookup: сначала кэш, затем БД с дозаписью в кэш
func (s *previewAccessService) lookup(ctx context.Context, hash string) (*models.PreviewLink, error) {
	if link, err := s.cacheRepo.Get(ctx, hash); err == nil {
		return link, nil
	}

	link, err := s.linkRepo.FindByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	if ttl := time.Until(link.ExpiresAt); ttl > 0 && link.Status == models.LinkStatusActive {
		if err := s.cacheRepo.Set(ctx, hash, link, ttl); err != nil {
			s.logger.Debug("Не удалось закэшировать preview ссылку", zap.Error(err))
		}
	}

	return link, nil
}
