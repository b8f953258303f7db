// Package price resolves the exchange rate of TON against the store's
// settlement currency.
package price

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no provider produced a price.
var ErrUnavailable = errors.New("price unavailable")

// Precision is the number of decimal places kept from provider prices.
const Precision = 3

// Quote is a price snapshot. It is never persisted.
type Quote struct {
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Age returns how old the quote is at now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// FreshAt reports whether q is a usable price no older than maxAge at now.
func (q Quote) FreshAt(now time.Time, maxAge time.Duration) bool {
	if !q.Value.IsPositive() || q.FetchedAt.IsZero() {
		return false
	}
	return q.Age(now) <= maxAge
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
