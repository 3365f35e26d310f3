package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы скидки
const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"

	// Recurring скидка исторически использует "amount" вместо "fixed"
	RecurringDiscountTypePercent = "percent"
	RecurringDiscountTypeAmount  = "amount"
)

const (
	CodeStatusActive   = "active"
	CodeStatusInactive = "inactive"
)

type DiscountCode struct {
	ID                      int64            `json:"id"`
	Code                    string           `json:"code"`
	Type                    string           `json:"type"`
	Value                   decimal.Decimal  `json:"value"`
	StartDate               *time.Time       `json:"start_date,omitempty"`
	EndDate                 *time.Time       `json:"end_date,omitempty"`
	UsageLimit              *int64           `json:"usage_limit,omitempty"`
	PerUserLimit            *int64           `json:"per_user_limit,omitempty"`
	Status                  string           `json:"status"`
	TimesUsed               int64            `json:"times_used"`
	TrialDays               int              `json:"trial_days"`
	TrialAmount             decimal.Decimal  `json:"trial_amount"`
	FirstPaymentOnly        bool             `json:"first_payment_only"`
	RecurringDiscountType   string           `json:"recurring_discount_type,omitempty"`
	RecurringDiscountAmount *decimal.Decimal `json:"recurring_discount_amount,omitempty"`
	LevelIDs                []int64          `json:"level_ids"` // Пустой список = код действует для всех уровней
}

// AppliesToLevel проверяет, действует ли код для данного уровня подписки
func (c *DiscountCode) AppliesToLevel(levelID int64) bool {
	if len(c.LevelIDs) == 0 {
		return true
	}
	for _, id := range c.LevelIDs {
		if id == levelID {
			return true
		}
	}
	return false
}

// HasRecurringDiscount сообщает, задана ли скидка на повторные платежи
func (c *DiscountCode) HasRecurringDiscount() bool {
	return c.RecurringDiscountType != "" && c.RecurringDiscountAmount != nil && !c.RecurringDiscountAmount.IsZero()
}

type MembershipLevel struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	InitialPayment decimal.Decimal `json:"initial_payment"`
	BillingAmount  decimal.Decimal `json:"billing_amount"`
	CyclePeriod    string          `json:"cycle_period"`
}

// Breakdown результат применения скидки к базовой сумме
type Breakdown struct {
	Original decimal.Decimal `json:"original"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

type TrialInfo struct {
	Days   int             `json:"days"`
	Amount decimal.Decimal `json:"amount"`
}

type RecurringDiscount struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// CodeValidation результат проверки кода без привязки к уровню оплаты
type CodeValidation struct {
	Valid   bool          `json:"valid"`
	Message string        `json:"message"`
	Code    *DiscountCode `json:"-"`
}

// CheckoutQuote данные для чекаута: что платить сегодня и что дальше.
// Приоритет due_today: trial > first_payment_only > обычный initial payment.
type CheckoutQuote struct {
	Valid             bool               `json:"valid"`
	Message           string             `json:"message"`
	Code              string             `json:"code"`
	Trial             *TrialInfo         `json:"trial"`
	FirstPaymentOnly  bool               `json:"first_payment_only"`
	RecurringDiscount *RecurringDiscount `json:"recurring_discount"`
	InitialPayment    decimal.Decimal    `json:"initial_payment"`
	DueToday          decimal.Decimal    `json:"due_today"`
	RecurringAmount   decimal.Decimal    `json:"recurring_amount"`
}
