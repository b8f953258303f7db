package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/metrics"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
)

// PriceGuard reports whether a current quote is still cached. The ledger
// consults it right before commit.
type PriceGuard interface {
	Cached(currency string) (price.Quote, bool)
}

// Deps wires a Service. Prices may be nil, in which case only the age of
// the caller's quote is checked.
type Deps struct {
	DB          TxBeginner
	Accounts    AccountStore
	Records     RecordStore
	Inventory   InventoryStore
	Payments    PaymentStore
	Prices      PriceGuard
	MaxPriceAge time.Duration
	Logger      *slog.Logger
}

// Service applies balance mutations. Every operation is one database
// transaction that locks the affected account row first.
type Service struct {
	db        TxBeginner
	accounts  AccountStore
	records   RecordStore
	inventory InventoryStore
	payments  PaymentStore
	prices    PriceGuard
	maxAge    time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	maxAge := d.MaxPriceAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Service{
		db:        d.DB,
		accounts:  d.Accounts,
		records:   d.Records,
		inventory: d.Inventory,
		payments:  d.Payments,
		prices:    d.Prices,
		maxAge:    maxAge,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreditRequest describes one deposit to apply. Amount is in TON.
type CreditRequest struct {
	AccountID int64
	Amount    decimal.Decimal
	TxHash    string
	Memo      string
	LT        *int64
	Quote     price.Quote
}

// Credit locks the account, adds Amount x price to the balance and inserts
// the transaction record. A duplicate hash yields AlreadyApplied.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (Outcome, error) {
	out, err := s.credit(ctx, req)
	s.observe("credit", out, err, "tx_hash", req.TxHash)
	return out, err
}

func (s *Service) credit(ctx context.Context, req CreditRequest) (Outcome, error) {
	if !s.priceUsable(req.Quote) {
		return PriceUnavailable, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return StorageError, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	accountID := req.AccountID
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return NoSuchAccount, nil
		}
		return StorageError, fmt.Errorf("lock account %d: %w", accountID, err)
	}

	now := s.now()
	rec := &models.TransactionRecord{
		ID:            uuid.New(),
		AccountID:     &accountID,
		Amount:        req.Amount,
		Comment:       req.Memo,
		TxHash:        req.TxHash,
		LT:            req.LT,
		PricePerUnit:  req.Quote.Value,
		PriceCurrency: req.Quote.Currency,
		CreatedAt:     now,
		PaidAt:        now,
	}
	if _, err := s.accounts.AddBalance(ctx, tx, accountID, rec.Settlement()); err != nil {
		return StorageError, fmt.Errorf("credit balance: %w", err)
	}
	if err := s.records.InsertTx(ctx, tx, rec); err != nil {
		if IsUniqueViolation(err) {
			return AlreadyApplied, nil
		}
		return StorageError, fmt.Errorf("insert transaction record: %w", err)
	}

	if !s.priceUsable(req.Quote) {
		return PriceUnavailable, nil
	}
	if err := tx.Commit(ctx); err != nil {
		if IsUniqueViolation(err) {
			return AlreadyApplied, nil
		}
		return StorageError, fmt.Errorf("commit credit: %w", err)
	}
	return Success, nil
}

// FailedDeposit is a deposit that could not be credited and is kept for
// the retrier.
type FailedDeposit struct {
	AccountID *int64
	Amount    decimal.Decimal
	TxHash    string
	Memo      string
	LT        *int64
	Price     decimal.Decimal
	Currency  string
}

// RecordFailed writes an atomic_failed record. An existing record for the
// same hash already makes the deposit durable, so that case is not an error.
func (s *Service) RecordFailed(ctx context.Context, d FailedDeposit) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fallback tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	rec := &models.TransactionRecord{
		ID:            uuid.New(),
		AccountID:     d.AccountID,
		Amount:        d.Amount,
		Comment:       d.Memo,
		TxHash:        d.TxHash,
		LT:            d.LT,
		PricePerUnit:  d.Price,
		PriceCurrency: d.Currency,
		AtomicFailed:  true,
		CreatedAt:     now,
		PaidAt:        now,
	}
	if err := s.records.InsertTx(ctx, tx, rec); err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert failed record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("commit failed record: %w", err)
	}
	metrics.LedgerOutcomes.WithLabelValues("record_failed", "success").Inc()
	return nil
}

// ApplyFailed credits an existing atomic_failed record in place, using the
// current quote, and clears its flag.
func (s *Service) ApplyFailed(ctx context.Context, recordID uuid.UUID, accountID int64, q price.Quote) (Outcome, error) {
	out, err := s.applyFailed(ctx, recordID, accountID, q)
	s.observe("apply_failed", out, err, "record_id", recordID)
	return out, err
}

func (s *Service) applyFailed(ctx context.Context, recordID uuid.UUID, accountID int64, q price.Quote) (Outcome, error) {
	if !s.priceUsable(q) {
		return PriceUnavailable, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return StorageError, fmt.Errorf("begin retry tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.records.GetFailedForUpdate(ctx, tx, recordID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return AlreadyApplied, nil
		}
		return StorageError, fmt.Errorf("lock failed record: %w", err)
	}
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return NoSuchAccount, nil
		}
		return StorageError, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	if _, err := s.accounts.AddBalance(ctx, tx, accountID, models.Settle(rec.Amount, q.Value)); err != nil {
		return StorageError, fmt.Errorf("credit balance: %w", err)
	}
	if err := s.records.MarkApplied(ctx, tx, rec.ID, accountID, q.Value, q.Currency, s.now()); err != nil {
		return StorageError, fmt.Errorf("mark record applied: %w", err)
	}

	if !s.priceUsable(q) {
		return PriceUnavailable, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return StorageError, fmt.Errorf("commit retry: %w", err)
	}
	return Success, nil
}

// DebitAndAllocate charges price to the account and assigns it one unsold
// item of the product. The balance check happens under the account lock.
func (s *Service) DebitAndAllocate(ctx context.Context, accountID int64, productID uuid.UUID, price decimal.Decimal) (*models.InventoryItem, Outcome, error) {
	item, out, err := s.debitAndAllocate(ctx, accountID, productID, price)
	s.observe("debit_and_allocate", out, err, "account_id", accountID, "product_id", productID)
	return item, out, err
}

func (s *Service) debitAndAllocate(ctx context.Context, accountID int64, productID uuid.UUID, price decimal.Decimal) (*models.InventoryItem, Outcome, error) {
	if price.IsNegative() {
		return nil, StorageError, fmt.Errorf("negative price %s", price)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, StorageError, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, NoSuchAccount, nil
		}
		return nil, StorageError, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	if acc.Balance.LessThan(price) {
		return nil, InsufficientFunds, nil
	}

	item, err := s.inventory.LockAvailable(ctx, tx, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, SoldOut, nil
		}
		return nil, StorageError, fmt.Errorf("lock inventory: %w", err)
	}

	if _, err := s.accounts.AddBalance(ctx, tx, accountID, price.Neg()); err != nil {
		return nil, StorageError, fmt.Errorf("debit balance: %w", err)
	}
	now := s.now()
	if err := s.inventory.MarkPurchased(ctx, tx, item.ID, accountID, now); err != nil {
		return nil, StorageError, fmt.Errorf("mark item purchased: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, StorageError, fmt.Errorf("commit purchase: %w", err)
	}

	item.IsPurchased = true
	item.BuyerID = &accountID
	item.PurchasedAt = &now
	return item, Success, nil
}

// ConfirmPayment credits a web payment once, if it is unpaid and unexpired.
func (s *Service) ConfirmPayment(ctx context.Context, code string) (*models.Payment, Outcome, error) {
	p, out, err := s.confirmPayment(ctx, code)
	s.observe("confirm_payment", out, err, "code", code)
	return p, out, err
}

func (s *Service) confirmPayment(ctx context.Context, code string) (*models.Payment, Outcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, StorageError, fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.payments.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, PaymentNotFound, nil
		}
		return nil, StorageError, fmt.Errorf("lock payment: %w", err)
	}
	if p.IsPaid {
		return p, AlreadyApplied, nil
	}
	now := s.now()
	if !now.Before(p.ExpiresAt) {
		return p, PaymentExpired, nil
	}
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, p.AccountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return p, NoSuchAccount, nil
		}
		return nil, StorageError, fmt.Errorf("lock account %d: %w", p.AccountID, err)
	}
	if _, err := s.accounts.AddBalance(ctx, tx, p.AccountID, p.Amount); err != nil {
		return nil, StorageError, fmt.Errorf("credit balance: %w", err)
	}
	if err := s.payments.MarkPaid(ctx, tx, p.ID, now); err != nil {
		return nil, StorageError, fmt.Errorf("mark payment paid: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, StorageError, fmt.Errorf("commit payment: %w", err)
	}
	p.IsPaid = true
	p.PaidAt = &now
	return p, Success, nil
}

func (s *Service) priceUsable(q price.Quote) bool {
	if !q.FreshAt(s.now(), s.maxAge) {
		return false
	}
	if s.prices == nil {
		return true
	}
	_, ok := s.prices.Cached(q.Currency)
	return ok
}

func (s *Service) observe(op string, out Outcome, err error, attrs ...any) {
	metrics.LedgerOutcomes.WithLabelValues(op, out.String()).Inc()
	if err != nil {
		s.log.Error("ledger operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	}
}
