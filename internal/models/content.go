package models

import (
	"time"
)

// Статусы контента. Draft и private видны только через preview ссылку.
const (
	PostStatusPublished = "published"
	PostStatusDraft     = "draft"
	PostStatusPrivate   = "private"
)

type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Visible сообщает, доступен ли пост при обычном (не preview) рендере
func (p *Post) Visible() bool {
	return p.Status == PostStatusPublished
}
