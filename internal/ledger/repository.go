package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// TxBeginner opens a database transaction (satisfied by *pgxpool.Pool).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore is the account access the ledger needs. All methods run in
// the caller's transaction.
type AccountStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Account, error)
	AddBalance(ctx context.Context, tx pgx.Tx, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}

// RecordStore is the transactions table access the ledger needs.
type RecordStore interface {
	InsertTx(ctx context.Context, tx pgx.Tx, rec *models.TransactionRecord) error
	GetFailedForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.TransactionRecord, error)
	MarkApplied(ctx context.Context, tx pgx.Tx, id uuid.UUID, accountID int64, price decimal.Decimal, currency string, paidAt time.Time) error
}

// InventoryStore is the inventory access the ledger needs.
type InventoryStore interface {
	LockAvailable(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*models.InventoryItem, error)
	MarkPurchased(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, buyerID int64, at time.Time) error
}

// PaymentStore is the web payment access the ledger needs.
type PaymentStore interface {
	GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Payment, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
