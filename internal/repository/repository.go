package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khmedia/khm-api/internal/config"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	// Настройка пула соединений
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// InitSchema создаёт таблицы, если их ещё нет.
// Preview ссылки никогда не удаляются ядром - чистка старых строк
// остаётся внешней заботой (cron вне сервиса).
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS preview_links (
			id BIGSERIAL PRIMARY KEY,
			content_id BIGINT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'active',
			expires_at TIMESTAMPTZ NOT NULL,
			created_by BIGINT NOT NULL,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_preview_links_content
			ON preview_links (content_id, status, expires_at)`,
		`CREATE TABLE IF NOT EXISTS preview_hits (
			id BIGSERIAL PRIMARY KEY,
			link_id BIGINT NOT NULL REFERENCES preview_links (id),
			viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			meta JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_preview_hits_link
			ON preview_hits (link_id, viewed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS membership_levels (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			initial_payment NUMERIC(12,2) NOT NULL DEFAULT 0,
			billing_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			cycle_period TEXT NOT NULL DEFAULT 'month'
		)`,
		`CREATE TABLE IF NOT EXISTS discount_codes (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			value NUMERIC(12,2) NOT NULL DEFAULT 0,
			start_date TIMESTAMPTZ,
			end_date TIMESTAMPTZ,
			usage_limit BIGINT,
			per_user_limit BIGINT,
			status TEXT NOT NULL DEFAULT 'active',
			times_used BIGINT NOT NULL DEFAULT 0,
			trial_days INT NOT NULL DEFAULT 0,
			trial_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			first_payment_only BOOLEAN NOT NULL DEFAULT FALSE,
			recurring_discount_type TEXT NOT NULL DEFAULT '',
			recurring_discount_amount NUMERIC(12,2),
			level_ids BIGINT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS discount_code_uses (
			id BIGSERIAL PRIMARY KEY,
			discount_code_id BIGINT NOT NULL REFERENCES discount_codes (id),
			user_id BIGINT NOT NULL,
			order_id BIGINT NOT NULL,
			used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ip_address TEXT NOT NULL DEFAULT '',
			UNIQUE (discount_code_id, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS app_options (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}

	return nil
}
