package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khmedia/khm-api/internal/models"
)

// PreviewHitRepository журнал просмотров: только append и чтение
type PreviewHitRepository interface {
	Insert(ctx context.Context, hit *models.PreviewHit) error
	RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.PreviewHit, error)
}

type previewHitRepository struct {
	db *PostgresDB
}

func NewPreviewHitRepository(db *PostgresDB) PreviewHitRepository {
	return &previewHitRepository{db: db}
}

func (r *previewHitRepository) Insert(ctx context.Context, hit *models.PreviewHit) error {
	query := `
		INSERT INTO preview_hits (link_id, viewed_at, ip, user_agent, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if hit.Meta == nil {
		hit.Meta = map[string]string{}
	}

	err := r.db.Pool.QueryRow(ctx, query,
		hit.LinkID,
		hit.ViewedAt,
		hit.IP,
		hit.UserAgent,
		hit.Meta,
	).Scan(&hit.ID)

	if err != nil {
		return fmt.Errorf("failed to record preview hit: %w", err)
	}

	return nil
}

// RecentByLink возвращает просмотры, новые первыми
func (r *previewHitRepository) RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.PreviewHit, error) {
	query := `
		SELECT id, link_id, viewed_at, ip, user_agent, meta
		FROM preview_hits
		WHERE link_id = $1
		ORDER BY viewed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID, limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []models.PreviewHit{}, nil
		}
		return nil, fmt.Errorf("failed to get preview hits: %w", err)
	}
	defer rows.Close()

	var hits []models.PreviewHit
	for rows.Next() {
		var hit models.PreviewHit
		if err := rows.Scan(&hit.ID, &hit.LinkID, &hit.ViewedAt, &hit.IP, &hit.UserAgent, &hit.Meta); err != nil {
			return nil, fmt.Errorf("failed to scan preview hit: %w", err)
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preview hits: %w", err)
	}

	return hits, nil
}
