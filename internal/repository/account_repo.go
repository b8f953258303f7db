package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// EnsureAccount creates the account on first interaction. It reports
// whether a new row was inserted.
func (r *AccountRepo) EnsureAccount(ctx context.Context, id int64, language string) (bool, error) {
	if language == "" {
		language = models.LangEnglish
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, language) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, language)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AccountRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT id, balance::text, language, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `
		SELECT id, balance::text, language, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`, id))
}

// AddBalance adds delta (which may be negative) and returns the new balance.
// The balance_non_negative constraint rejects an overdraft.
func (r *AccountRepo) AddBalance(ctx context.Context, tx pgx.Tx, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var s string
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1::numeric, updated_at = now()
		WHERE id = $2
		RETURNING balance::text
	`, delta.String(), id).Scan(&s)
	if err != nil {
		return decimal.Zero, notFound(err)
	}
	return parseDecimal("balance", s)
}

// Language returns the account's chat language.
func (r *AccountRepo) Language(ctx context.Context, id int64) (string, error) {
	var lang string
	err := r.pool.QueryRow(ctx, `SELECT language FROM accounts WHERE id = $1`, id).Scan(&lang)
	if err != nil {
		return "", notFound(err)
	}
	return lang, nil
}

func (r *AccountRepo) SetLanguage(ctx context.Context, id int64, language string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET language = $2, updated_at = now() WHERE id = $1
	`, id, language)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a   models.Account
		bal string
	)
	if err := row.Scan(&a.ID, &bal, &a.Language, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if a.Balance, err = parseDecimal("balance", bal); err != nil {
		return nil, err
	}
	return &a, nil
}
