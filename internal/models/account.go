package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supported account languages.
const (
	LangEnglish = "en"
	LangFarsi   = "fa"
)

// Account is a store customer keyed by their Telegram user id.
// Balance is denominated in the store's settlement currency.
type Account struct {
	ID        int64           `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Language  string          `json:"language"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
