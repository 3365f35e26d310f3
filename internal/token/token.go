package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Длина токена по умолчанию (в байтах до hex кодирования)
const DefaultByteLength = 32

var ErrEmptySecret = errors.New("пустой секрет для хэширования токенов")

// SecretStore внешнее key-value хранилище секрета.
// GetOrCreate должен быть атомарным: при гонке на первом старте
// все процессы обязаны сойтись на одном значении.
type SecretStore interface {
	GetOrCreate(ctx context.Context, name string, candidate string) (string, error)
}

// Generate возвращает криптографически случайный токен в нижнем hex,
// длина строки = 2*byteLength. Отказ CSPRNG - фатальная ошибка,
// никакого отката на слабый генератор.
func Generate(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultByteLength
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csprng failure: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken считает HMAC-SHA256 от токена с процессным секретом.
// Детерминирован: одна пара (token, secret) всегда даёт один хэш.
// Смена секрета инвалидирует все выданные токены - операционный риск,
// задокументированный для PREVIEW_SECRET.
func HashToken(token string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// LoadSecret загружает секрет один раз на старте процесса.
// Явный override из конфига имеет приоритет; иначе секрет лениво
// создаётся в хранилище через атомарный insert-if-absent.
func LoadSecret(ctx context.Context, override string, store SecretStore) ([]byte, error) {
	if override != "" {
		return []byte(override), nil
	}

	candidate, err := Generate(DefaultByteLength)
	if err != nil {
		return nil, err
	}

	secret, err := store.GetOrCreate(ctx, "preview_token_secret", candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to load token secret: %w", err)
	}
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return []byte(secret), nil
}
