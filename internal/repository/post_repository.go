package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khmedia/khm-api/internal/models"
)

var ErrPostNotFound = errors.New("post not found")

// PostRepository доступ к контенту. CMS здесь внешний коллаборатор:
// сервис только читает посты, статус поста он не меняет никогда.
type PostRepository interface {
	Find(ctx context.Context, id int64) (*models.Post, error)
	Insert(ctx context.Context, post *models.Post) error
}

type postRepository struct {
	db *PostgresDB
}

func NewPostRepository(db *PostgresDB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Find(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT id, title, body, status, created_at FROM posts WHERE id = $1`

	post := &models.Post{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&post.ID,
		&post.Title,
		&post.Body,
		&post.Status,
		&post.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return post, nil
}

func (r *postRepository) Insert(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (title, body, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query, post.Title, post.Body, post.Status).
		Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	return nil
}
