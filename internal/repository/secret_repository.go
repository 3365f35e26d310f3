package repository

import (
	"context"
	"fmt"
)

// SecretRepository хранит процессные секреты в app_options.
// GetOrCreate атомарен: INSERT .. ON CONFLICT DO NOTHING + SELECT,
// поэтому гонка двух первых стартов сходится к одному секрету и уже
// выданные токены не становятся непроверяемыми.
type SecretRepository struct {
	db *PostgresDB
}

func NewSecretRepository(db *PostgresDB) *SecretRepository {
	return &SecretRepository{db: db}
}

func (r *SecretRepository) GetOrCreate(ctx context.Context, name string, candidate string) (string, error) {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO app_options (name, value) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store secret: %w", err)
	}

	var value string
	err = r.db.Pool.QueryRow(ctx,
		`SELECT value FROM app_options WHERE name = $1`,
		name,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	return value, nil
}
