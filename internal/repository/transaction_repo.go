package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// TransactionRepo stores deposit records. tx_hash is unique among
// non-deleted rows (transactions_tx_hash_live).
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const recordColumns = `id, account_id, amount::text, comment, tx_hash, lt, price_per_unit::text, price_currency, atomic_failed, is_deleted, created_at, paid_at`

// InsertTx inserts rec inside tx. A duplicate live hash surfaces as a
// *pgconn.PgError with code 23505.
func (r *TransactionRepo) InsertTx(ctx context.Context, tx pgx.Tx, rec *models.TransactionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, amount, comment, tx_hash, lt, price_per_unit, price_currency, atomic_failed, created_at, paid_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
	`, rec.ID, rec.AccountID, rec.Amount.String(), rec.Comment, rec.TxHash, rec.LT, rec.PricePerUnit.String(), rec.PriceCurrency, rec.AtomicFailed, rec.CreatedAt, rec.PaidAt)
	return err
}

// ExistsByHash reports whether a live record exists for hash.
func (r *TransactionRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE tx_hash = $1 AND NOT is_deleted)
	`, hash).Scan(&ok)
	return ok, err
}

// GetFailedForUpdate locks a live atomic_failed record. Call within a transaction.
func (r *TransactionRepo) GetFailedForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.TransactionRecord, error) {
	return scanRecord(tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE id = $1 AND atomic_failed AND NOT is_deleted
		FOR UPDATE
	`, id))
}

// MarkApplied transitions a failed record to credited with the price used.
func (r *TransactionRepo) MarkApplied(ctx context.Context, tx pgx.Tx, id uuid.UUID, accountID int64, price decimal.Decimal, currency string, paidAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET atomic_failed = FALSE, account_id = $2, price_per_unit = $3::numeric, price_currency = $4, paid_at = $5
		WHERE id = $1 AND atomic_failed AND NOT is_deleted
	`, id, accountID, price.String(), currency, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListFailed returns live atomic_failed records, oldest first.
func (r *TransactionRepo) ListFailed(ctx context.Context) ([]*models.TransactionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE atomic_failed AND NOT is_deleted
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ExpireFailed soft-deletes a record that is still atomic_failed.
func (r *TransactionRepo) ExpireFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions SET is_deleted = TRUE
		WHERE id = $1 AND atomic_failed AND NOT is_deleted
	`, id)
	return err
}

// ListHistory returns one page of credited records for the account, newest
// first, and whether another page follows.
func (r *TransactionRepo) ListHistory(ctx context.Context, accountID int64, page int) ([]*models.TransactionRecord, bool, error) {
	limit, offset := pageBounds(page)
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE account_id = $1 AND NOT is_deleted AND NOT atomic_failed
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	list, err := collectRecords(rows)
	if err != nil {
		return nil, false, err
	}
	hasNext := len(list) > PageSize
	if hasNext {
		list = list[:PageSize]
	}
	return list, hasNext, nil
}

func collectRecords(rows pgx.Rows) ([]*models.TransactionRecord, error) {
	list := []*models.TransactionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func scanRecord(row pgx.Row) (*models.TransactionRecord, error) {
	var (
		rec           models.TransactionRecord
		amount, price string
	)
	err := row.Scan(&rec.ID, &rec.AccountID, &amount, &rec.Comment, &rec.TxHash, &rec.LT, &price, &rec.PriceCurrency, &rec.AtomicFailed, &rec.IsDeleted, &rec.CreatedAt, &rec.PaidAt)
	if err != nil {
		return nil, notFound(err)
	}
	if rec.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if rec.PricePerUnit, err = parseDecimal("price_per_unit", price); err != nil {
		return nil, err
	}
	return &rec, nil
}
