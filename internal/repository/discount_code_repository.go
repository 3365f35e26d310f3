package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrCodeNotFound      = errors.New("discount code not found")
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
)

// DiscountCodeRepository доступ к кодам и журналу их использования.
// TrackUsage - единственное место с транзакционной гарантией: инкремент
// times_used и запись использования происходят атомарно, чтобы две
// параллельные оплаты на границе usage_limit не проскочили обе.
type DiscountCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	Find(ctx context.Context, id int64) (*models.DiscountCode, error)
	Insert(ctx context.Context, code *models.DiscountCode) error
	CountUsageForUser(ctx context.Context, codeID, userID int64) (int64, error)
	TrackUsage(ctx context.Context, codeID, userID, orderID int64, ip string) error
}

const discountCodeColumns = `
	id, code, type, value::text, start_date, end_date, usage_limit, per_user_limit,
	status, times_used, trial_days, trial_amount::text, first_payment_only,
	recurring_discount_type, recurring_discount_amount::text, level_ids`

type discountCodeRepository struct {
	db *PostgresDB
}

func NewDiscountCodeRepository(db *PostgresDB) DiscountCodeRepository {
	return &discountCodeRepository{db: db}
}

// FindByCode ищет код по точному совпадению строки (case-sensitive)
func (r *discountCodeRepository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	query := `SELECT` + discountCodeColumns + ` FROM discount_codes WHERE code = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, code))
}

func (r *discountCodeRepository) Find(ctx context.Context, id int64) (*models.DiscountCode, error) {
	query := `SELECT` + discountCodeColumns + ` FROM discount_codes WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *discountCodeRepository) Insert(ctx context.Context, code *models.DiscountCode) error {
	query := `
		INSERT INTO discount_codes (
			code, type, value, start_date, end_date, usage_limit, per_user_limit,
			status, times_used, trial_days, trial_amount, first_payment_only,
			recurring_discount_type, recurring_discount_amount, level_ids
		)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12, $13, $14::numeric, $15)
		RETURNING id
	`

	var recurring *string
	if code.RecurringDiscountAmount != nil {
		s := code.RecurringDiscountAmount.String()
		recurring = &s
	}
	levelIDs := code.LevelIDs
	if levelIDs == nil {
		levelIDs = []int64{}
	}

	err := r.db.Pool.QueryRow(ctx, query,
		code.Code,
		code.Type,
		code.Value.String(),
		code.StartDate,
		code.EndDate,
		code.UsageLimit,
		code.PerUserLimit,
		code.Status,
		code.TimesUsed,
		code.TrialDays,
		code.TrialAmount.String(),
		code.FirstPaymentOnly,
		code.RecurringDiscountType,
		recurring,
		levelIDs,
	).Scan(&code.ID)

	if err != nil {
		return fmt.Errorf("failed to insert discount code: %w", err)
	}

	return nil
}

func (r *discountCodeRepository) CountUsageForUser(ctx context.Context, codeID, userID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM discount_code_uses WHERE discount_code_id = $1 AND user_id = $2`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, codeID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count code usage: %w", err)
	}

	return count, nil
}

// TrackUsage записывает использование кода после подтверждённого заказа.
// Повторный вызов с тем же (code_id, order_id) - no-op: уникальный индекс
// гасит дубль, счётчик не инкрементируется второй раз. Проигранная гонка
// на границе лимита возвращает ErrUsageLimitReached, как и синхронная
// проверка при валидации.
func (r *discountCodeRepository) TrackUsage(ctx context.Context, codeID, userID, orderID int64, ip string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку кода: check-then-act под row lock
	var timesUsed int64
	var usageLimit *int64
	err = tx.QueryRow(ctx,
		`SELECT times_used, usage_limit FROM discount_codes WHERE id = $1 FOR UPDATE`,
		codeID,
	).Scan(&timesUsed, &usageLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("failed to lock discount code: %w", err)
	}

	result, err := tx.Exec(ctx,
		`INSERT INTO discount_code_uses (discount_code_id, user_id, order_id, ip_address)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (discount_code_id, order_id) DO NOTHING`,
		codeID, userID, orderID, ip,
	)
	if err != nil {
		return fmt.Errorf("failed to record code usage: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Заказ уже учтён - идемпотентный выход без инкремента
		return tx.Commit(ctx)
	}

	if usageLimit != nil && timesUsed >= *usageLimit {
		return ErrUsageLimitReached
	}

	if _, err := tx.Exec(ctx,
		`UPDATE discount_codes SET times_used = times_used + 1 WHERE id = $1`,
		codeID,
	); err != nil {
		return fmt.Errorf("failed to increment times_used: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}

	return nil
}

func (r *discountCodeRepository) scanOne(row pgx.Row) (*models.DiscountCode, error) {
	code := &models.DiscountCode{}
	var value, trialAmount string
	var recurring *string

	err := row.Scan(
		&code.ID,
		&code.Code,
		&code.Type,
		&value,
		&code.StartDate,
		&code.EndDate,
		&code.UsageLimit,
		&code.PerUserLimit,
		&code.Status,
		&code.TimesUsed,
		&code.TrialDays,
		&trialAmount,
		&code.FirstPaymentOnly,
		&code.RecurringDiscountType,
		&recurring,
		&code.LevelIDs,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}

	if code.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("failed to parse code value: %w", err)
	}
	if code.TrialAmount, err = decimal.NewFromString(trialAmount); err != nil {
		return nil, fmt.Errorf("failed to parse trial amount: %w", err)
	}
	if recurring != nil {
		amount, err := decimal.NewFromString(*recurring)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recurring amount: %w", err)
		}
		code.RecurringDiscountAmount = &amount
	}

	return code, nil
}
