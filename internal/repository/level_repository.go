package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/shopspring/decimal"
)

var ErrLevelNotFound = errors.New("membership level not found")

// LevelRepository каталог уровней подписки (цены для чекаута)
type LevelRepository interface {
	Find(ctx context.Context, id int64) (*models.MembershipLevel, error)
	Insert(ctx context.Context, level *models.MembershipLevel) error
}

type levelRepository struct {
	db *PostgresDB
}

func NewLevelRepository(db *PostgresDB) LevelRepository {
	return &levelRepository{db: db}
}

func (r *levelRepository) Find(ctx context.Context, id int64) (*models.MembershipLevel, error) {
	query := `
		SELECT id, name, initial_payment::text, billing_amount::text, cycle_period
		FROM membership_levels
		WHERE id = $1
	`

	level := &models.MembershipLevel{}
	var initial, billing string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&level.ID,
		&level.Name,
		&initial,
		&billing,
		&level.CyclePeriod,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("failed to get membership level: %w", err)
	}

	if level.InitialPayment, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("failed to parse initial payment: %w", err)
	}
	if level.BillingAmount, err = decimal.NewFromString(billing); err != nil {
		return nil, fmt.Errorf("failed to parse billing amount: %w", err)
	}

	return level, nil
}

func (r *levelRepository) Insert(ctx context.Context, level *models.MembershipLevel) error {
	query := `
		INSERT INTO membership_levels (name, initial_payment, billing_amount, cycle_period)
		VALUES ($1, $2::numeric, $3::numeric, $4)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		level.Name,
		level.InitialPayment.String(),
		level.BillingAmount.String(),
		level.CyclePeriod,
	).Scan(&level.ID)
	if err != nil {
		return fmt.Errorf("failed to insert membership level: %w", err)
	}

	return nil
}
