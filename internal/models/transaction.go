package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRecord is one deposit seen on the external feed. TxHash is the
// idempotency key; at most one non-deleted record exists per hash.
//
// AtomicFailed marks a deposit that was accepted but not yet credited.
type TransactionRecord struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     *int64          `json:"account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Comment       string          `json:"comment"`
	TxHash        string          `json:"tx_hash"`
	LT            *int64          `json:"lt,omitempty"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit"`
	PriceCurrency string          `json:"price_currency"`
	AtomicFailed  bool            `json:"atomic_failed"`
	IsDeleted     bool            `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        time.Time       `json:"paid_at"`
}

// BalanceScale is the number of decimal places stored for balances.
const BalanceScale = 6

// Settle converts amount at price into balance units, rounded half away
// from zero to BalanceScale places as the balance column stores it.
func Settle(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price).Round(BalanceScale)
}

// Settlement returns the amount credited to the balance for this record.
func (t *TransactionRecord) Settlement() decimal.Decimal {
	return Settle(t.Amount, t.PricePerUnit)
}

// DepositCursor is the durable watermark for one feed.
type DepositCursor struct {
	Key       string    `json:"key"`
	LastLT    int64     `json:"last_lt"`
	UpdatedAt time.Time `json:"updated_at"`
}
