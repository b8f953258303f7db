package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is a top-up created for the web payment page. Code is unique and
// a payment is credited at most once, before ExpiresAt.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsPaid    bool            `json:"is_paid"`
	ExpiresAt time.Time       `json:"expires_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
