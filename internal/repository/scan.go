package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// PageSize is the fixed page length of history listings.
const PageSize = 10

// notFound maps pgx.ErrNoRows to models.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

// NUMERIC columns are selected as ::text and parsed here.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

// pageBounds returns LIMIT/OFFSET for a 1-based page, fetching one extra
// row so callers can report whether a next page exists.
func pageBounds(page int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	return PageSize + 1, (page - 1) * PageSize
}
