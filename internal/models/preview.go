package models

import (
	"time"
)

// Статусы preview ссылки
const (
	LinkStatusActive  = "active"
	LinkStatusRevoked = "revoked"
)

type PreviewLink struct {
	ID        int64             `json:"id"`
	ContentID int64             `json:"content_id"`
	TokenHash string            `json:"-"`
	Status    string            `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedBy int64             `json:"created_by"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Expired сравнивает срок действия с переданным моментом времени
func (l *PreviewLink) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

type CreatePreviewLinkInput struct {
	ContentID int64             `json:"content_id" binding:"required"`
	UserID    int64             `json:"user_id"`
	ExpiresAt time.Time         `json:"expires_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// IssuedLink содержит созданную ссылку вместе с сырым токеном.
// Токен возвращается вызывающему ровно один раз и нигде не хранится.
type IssuedLink struct {
	Link  *PreviewLink `json:"link"`
	Token string       `json:"token"`
}

type PreviewHit struct {
	ID        int64             `json:"id"`
	LinkID    int64             `json:"link_id"`
	ViewedAt  time.Time         `json:"viewed_at"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"user_agent"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type HitInput struct {
	LinkID    int64
	IP        string
	UserAgent string
	Meta      map[string]string
}
