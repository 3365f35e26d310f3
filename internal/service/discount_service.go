package service

import (
	"context"
	"errors"
	"time"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrCodeNotFound      = errors.New("discount код не найден")
	ErrLevelNotFound     = errors.New("уровень подписки не найден")
	ErrUsageLimitReached = errors.New("лимит использований кода исчерпан")
)

// Сообщения валидации. Коды скидок не секрет в том смысле, в каком
// секретны preview токены, поэтому причина отказа возвращается явно.
const (
	msgCodeInvalid      = "Invalid discount code."
	msgCodeInactive     = "This discount code is not active."
	msgCodeNotStarted   = "This discount code is not yet valid."
	msgCodeExpired      = "This discount code has expired."
	msgCodeUsageLimit   = "This discount code has reached its usage limit."
	msgCodePerUserLimit = "You have already used this discount code the maximum number of times."
	msgCodeWrongLevel   = "This discount code is not valid for the selected membership level."
	msgCodeApplied      = "Discount code applied successfully."
)

var hundred = decimal.NewFromInt(100)

// DiscountService валидация кодов и расчёт скидок для чекаута.
// Сам по себе сервис stateless: персистентность использования лежит
// на репозитории, сервис её только триггерит.
type DiscountService interface {
	ValidateCode(ctx context.Context, code string, levelID, userID int64) (*models.CodeValidation, error)
	GetDiscountBreakdown(amount decimal.Decimal, code *models.DiscountCode) models.Breakdown
	GetTrialInfo(code *models.DiscountCode) *models.TrialInfo
	ApplyRecurringDiscount(amount decimal.Decimal, code *models.DiscountCode) decimal.Decimal
	Quote(ctx context.Context, code string, levelID, userID int64) (*models.CheckoutQuote, error)
	TrackUsage(ctx context.Context, codeID, userID, orderID int64, ip string) error
}

type discountService struct {
	codeRepo  repository.DiscountCodeRepository
	levelRepo repository.LevelRepository
	logger    *zap.Logger
}

// NewDiscountService создаёт новый экземпляр сервиса
func NewDiscountService(
	codeRepo repository.DiscountCodeRepository,
	levelRepo repository.LevelRepository,
	logger *zap.Logger,
) DiscountService {
	return &discountService{
		codeRepo:  codeRepo,
		levelRepo: levelRepo,
		logger:    logger,
	}
}

// ValidateCode ищет код по точной строке (case-sensitive) и гоняет
// проверки строго по порядку, обрывая на первой неудаче:
// статус -> окно дат -> общий лимит -> лимит на пользователя -> уровень.
// Порядок значим: код, который одновременно истёк и исчерпан, должен
// вернуть сообщение про истечение.
func (s *discountService) ValidateCode(ctx context.Context, code string, levelID, userID int64) (*models.CodeValidation, error) {
	discountCode, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return invalid(msgCodeInvalid), nil
		}
		return nil, err
	}

	if discountCode.Status != models.CodeStatusActive {
		return invalid(msgCodeInactive), nil
	}

	now := time.Now()
	if discountCode.StartDate != nil && now.Before(*discountCode.StartDate) {
		return invalid(msgCodeNotStarted), nil
	}
	if discountCode.EndDate != nil && now.After(*discountCode.EndDate) {
		return invalid(msgCodeExpired), nil
	}

	if discountCode.UsageLimit != nil && discountCode.TimesUsed >= *discountCode.UsageLimit {
		return invalid(msgCodeUsageLimit), nil
	}

	if discountCode.PerUserLimit != nil {
		used, err := s.codeRepo.CountUsageForUser(ctx, discountCode.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= *discountCode.PerUserLimit {
			return invalid(msgCodePerUserLimit), nil
		}
	}

	if !discountCode.AppliesToLevel(levelID) {
		return invalid(msgCodeWrongLevel), nil
	}

	return &models.CodeValidation{
		Valid:   true,
		Message: msgCodeApplied,
		Code:    discountCode,
	}, nil
}

// GetDiscountBreakdown чистая функция расчёта скидки.
// percent: discount = amount * value / 100; fixed: discount = min(value, amount).
// final никогда не уходит ниже нуля; суммы округляются до 2 знаков.
func (s *discountService) GetDiscountBreakdown(amount decimal.Decimal, code *models.DiscountCode) models.Breakdown {
	var discount decimal.Decimal

	switch code.Type {
	case models.DiscountTypePercent:
		discount = amount.Mul(code.Value).Div(hundred)
	default:
		discount = code.Value
		if discount.GreaterThan(amount) {
			discount = amount
		}
	}

	discount = discount.Round(2)
	final := amount.Sub(discount).Round(2)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return models.Breakdown{
		Original: amount,
		Discount: discount,
		Final:    final,
	}
}

// GetTrialInfo возвращает trial окно или nil, если оно не задано.
// trial_amount может быть нулём (полностью бесплатный trial) или
// больше нуля (платный trial).
func (s *discountService) GetTrialInfo(code *models.DiscountCode) *models.TrialInfo {
	if code.TrialDays == 0 && code.TrialAmount.IsZero() {
		return nil
	}
	return &models.TrialInfo{
		Days:   code.TrialDays,
		Amount: code.TrialAmount,
	}
}

// ApplyRecurringDiscount применяет скидку к повторным платежам.
// Recurring правило независимо от разовой скидки; если оно не задано,
// сумма возвращается без изменений.
func (s *discountService) ApplyRecurringDiscount(amount decimal.Decimal, code *models.DiscountCode) decimal.Decimal {
	if !code.HasRecurringDiscount() {
		return amount
	}

	var discount decimal.Decimal
	if code.RecurringDiscountType == models.RecurringDiscountTypePercent {
		discount = amount.Mul(*code.RecurringDiscountAmount).Div(hundred)
	} else {
		discount = *code.RecurringDiscountAmount
	}

	final := amount.Sub(discount).Round(2)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

// Quote собирает данные чекаута по валидному коду.
// Приоритет due_today: trial (дни > 0) > first_payment_only > обычный
// initial payment. Без trial и first_payment_only скидка первый платёж
// не уменьшает.
func (s *discountService) Quote(ctx context.Context, code string, levelID, userID int64) (*models.CheckoutQuote, error) {
	validation, err := s.ValidateCode(ctx, code, levelID, userID)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return &models.CheckoutQuote{Valid: false, Message: validation.Message}, nil
	}

	level, err := s.levelRepo.Find(ctx, levelID)
	if err != nil {
		if errors.Is(err, repository.ErrLevelNotFound) {
			return nil, ErrLevelNotFound
		}
		return nil, err
	}

	discountCode := validation.Code
	trial := s.GetTrialInfo(discountCode)

	dueToday := level.InitialPayment
	switch {
	case trial != nil && trial.Days > 0:
		dueToday = trial.Amount
	case discountCode.FirstPaymentOnly:
		dueToday = s.GetDiscountBreakdown(level.InitialPayment, discountCode).Final
	}

	var recurring *models.RecurringDiscount
	if discountCode.HasRecurringDiscount() {
		recurring = &models.RecurringDiscount{
			Type:   discountCode.RecurringDiscountType,
			Amount: *discountCode.RecurringDiscountAmount,
		}
	}

	return &models.CheckoutQuote{
		Valid:             true,
		Message:           validation.Message,
		Code:              discountCode.Code,
		Trial:             trial,
		FirstPaymentOnly:  discountCode.FirstPaymentOnly,
		RecurringDiscount: recurring,
		InitialPayment:    level.InitialPayment,
		DueToday:          dueToday,
		RecurringAmount:   s.ApplyRecurringDiscount(level.BillingAmount, discountCode),
	}, nil
}

// TrackUsage фиксирует использование кода после подтверждённого заказа.
// Вызывается максимум один раз на реальный заказ; дубль по (code, order)
// репозиторий гасит как no-op.
func (s *discountService) TrackUsage(ctx context.Context, codeID, userID, orderID int64, ip string) error {
	err := s.codeRepo.TrackUsage(ctx, codeID, userID, orderID, ip)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeNotFound):
			return ErrCodeNotFound
		case errors.Is(err, repository.ErrUsageLimitReached):
			return ErrUsageLimitReached
		}
		return err
	}
	return nil
}

func invalid(message string) *models.CodeValidation {
	return &models.CodeValidation{Valid: false, Message: message}
}
