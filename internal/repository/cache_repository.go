package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khmedia/khm-api/internal/models"
)

// CacheRepository кэш preview ссылок по хэшу токена.
// Кэш снимает чтение из БД на горячем пути публичной проверки;
// revoke и extend обязаны инвалидировать запись.
type CacheRepository interface {
	Get(ctx context.Context, tokenHash string) (*models.PreviewLink, error)
	Set(ctx context.Context, tokenHash string, link *models.PreviewLink, ttl time.Duration) error
	Delete(ctx context.Context, tokenHash string) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, tokenHash string) (*models.PreviewLink, error) {
	data, err := r.redis.Client.Get(ctx, r.key(tokenHash)).Bytes()
	if err != nil {
		return nil, err
	}

	var link models.PreviewLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preview link: %w", err)
	}
	// TokenHash исключён из JSON, восстанавливаем из ключа
	link.TokenHash = tokenHash

	return &link, nil
}

func (r *cacheRepository) Set(ctx context.Context, tokenHash string, link *models.PreviewLink, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal preview link: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(tokenHash), data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, tokenHash string) error {
	return r.redis.Client.Del(ctx, r.key(tokenHash)).Err()
}

func (r *cacheRepository) key(tokenHash string) string {
	return "preview:" + tokenHash
}
