package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/khmedia/khm-api/internal/models"
)

var (
	ErrLinkNotFound  = errors.New("preview link not found")
	ErrTokenHashUsed = errors.New("token hash already exists")
)

// PreviewLinkRepository тонкий слой доступа к таблице preview_links.
// Бизнес-правил здесь нет; строки никогда не удаляются.
type PreviewLinkRepository interface {
	Insert(ctx context.Context, link *models.PreviewLink) error
	Find(ctx context.Context, id int64) (*models.PreviewLink, error)
	FindByTokenHash(ctx context.Context, hash string) (*models.PreviewLink, error)
	FindActiveByContent(ctx context.Context, contentID int64) (*models.PreviewLink, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateExpiration(ctx context.Context, id int64, expiresAt time.Time) error
}

const previewLinkColumns = `id, content_id, token_hash, status, expires_at, created_by, meta, created_at`

type previewLinkRepository struct {
	db *PostgresDB
}

func NewPreviewLinkRepository(db *PostgresDB) PreviewLinkRepository {
	return &previewLinkRepository{db: db}
}

func (r *previewLinkRepository) Insert(ctx context.Context, link *models.PreviewLink) error {
	query := `
		INSERT INTO preview_links (content_id, token_hash, status, expires_at, created_by, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	if link.Meta == nil {
		link.Meta = map[string]string{}
	}

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ContentID,
		link.TokenHash,
		link.Status,
		link.ExpiresAt,
		link.CreatedBy,
		link.Meta,
		link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert preview link: %w", err)
	}

	return nil
}

func (r *previewLinkRepository) Find(ctx context.Context, id int64) (*models.PreviewLink, error) {
	query := `SELECT ` + previewLinkColumns + ` FROM preview_links WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *previewLinkRepository) FindByTokenHash(ctx context.Context, hash string) (*models.PreviewLink, error) {
	query := `SELECT ` + previewLinkColumns + ` FROM preview_links WHERE token_hash = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, hash))
}

// FindActiveByContent возвращает самую свежую активную и не истёкшую
// ссылку для контента. Старые активные ссылки не отзываются при выпуске
// новой - несколько одновременно действующих ссылок допустимы намеренно.
func (r *previewLinkRepository) FindActiveByContent(ctx context.Context, contentID int64) (*models.PreviewLink, error) {
	query := `
		SELECT ` + previewLinkColumns + `
		FROM preview_links
		WHERE content_id = $1 AND status = $2 AND expires_at > NOW()
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, contentID, models.LinkStatusActive))
}

func (r *previewLinkRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE preview_links SET status = $2 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update link status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *previewLinkRepository) UpdateExpiration(ctx context.Context, id int64, expiresAt time.Time) error {
	query := `UPDATE preview_links SET expires_at = $2 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update link expiration: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *previewLinkRepository) scanOne(row pgx.Row) (*models.PreviewLink, error) {
	link := &models.PreviewLink{}
	err := row.Scan(
		&link.ID,
		&link.ContentID,
		&link.TokenHash,
		&link.Status,
		&link.ExpiresAt,
		&link.CreatedBy,
		&link.Meta,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get preview link: %w", err)
	}

	return link, nil
}
