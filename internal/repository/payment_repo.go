package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// PaymentRepo stores web payment top-ups. code is unique.
type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, code, account_id, amount::text, is_paid, expires_at, paid_at, created_at`

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, code, account_id, amount, expires_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at
	`, p.ID, p.Code, p.AccountID, p.Amount.String(), p.ExpiresAt).Scan(&p.CreatedAt)
}

func (r *PaymentRepo) GetByCode(ctx context.Context, code string) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE code = $1`, code))
}

// GetByCodeForUpdate locks the payment row. Call within a transaction.
func (r *PaymentRepo) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE code = $1 FOR UPDATE`, code))
}

func (r *PaymentRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payments SET is_paid = TRUE, paid_at = $2 WHERE id = $1 AND NOT is_paid
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p      models.Payment
		amount string
	)
	if err := row.Scan(&p.ID, &p.Code, &p.AccountID, &amount, &p.IsPaid, &p.ExpiresAt, &p.PaidAt, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	return &p, nil
}
