package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/memo"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
)

// FailedRecordStore lists and expires atomic_failed records.
type FailedRecordStore interface {
	ListFailed(ctx context.Context) ([]*models.TransactionRecord, error)
	ExpireFailed(ctx context.Context, id uuid.UUID) error
}

// RetryLedger applies a failed record in place.
type RetryLedger interface {
	ApplyFailed(ctx context.Context, recordID uuid.UUID, accountID int64, q price.Quote) (ledger.Outcome, error)
}

// RetrierDeps wires a Retrier. MaxAge of zero keeps failed records forever.
type RetrierDeps struct {
	Records        FailedRecordStore
	Ledger         RetryLedger
	Settings       SettingsSource
	Prices         PriceCache
	Memo           memo.Parser
	Notifier       DepositNotifier
	MaxAge         time.Duration
	OnPriceMissing func()
	Logger         *slog.Logger
}

// Retrier re-applies deposits that were seen but not credited. It never
// reads the feed and never touches the cursor.
type Retrier struct {
	d   RetrierDeps
	log *slog.Logger
	now func() time.Time
}

func NewRetrier(d RetrierDeps) *Retrier {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Memo == nil {
		d.Memo = memo.HexParser{}
	}
	return &Retrier{d: d, log: d.Logger, now: time.Now}
}

// RunCycle makes one pass over the failed records. A record that fails
// again stays failed for the next pass.
func (r *Retrier) RunCycle(ctx context.Context) error {
	records, err := r.d.Records.ListFailed(ctx)
	if err != nil {
		return fmt.Errorf("list failed records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	s, err := r.d.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	quote, havePrice := r.d.Prices.Cached(s.WalletCurrency)
	if !havePrice && r.d.OnPriceMissing != nil {
		r.d.OnPriceMissing()
	}

	var errs []error
	for _, rec := range records {
		if r.expired(rec) {
			if err := r.d.Records.ExpireFailed(ctx, rec.ID); err != nil {
				errs = append(errs, fmt.Errorf("expire %s: %w", rec.TxHash, err))
				continue
			}
			r.log.Warn("failed deposit expired", "tx_hash", rec.TxHash, "created_at", rec.CreatedAt)
			continue
		}
		if !havePrice {
			continue
		}

		accountID, err := r.d.Memo.AccountID(rec.Comment)
		if err != nil {
			r.log.Warn("failed deposit has bad memo", "tx_hash", rec.TxHash, "memo", rec.Comment, "error", err)
			continue
		}
		out, err := r.d.Ledger.ApplyFailed(ctx, rec.ID, accountID, quote)
		switch out {
		case ledger.Success:
			r.log.Info("failed deposit applied", "tx_hash", rec.TxHash, "account_id", accountID)
			if r.d.Notifier != nil {
				if nerr := r.d.Notifier.DepositCredited(ctx, accountID, models.Settle(rec.Amount, quote.Value), s.WalletCurrencySign); nerr != nil {
					r.log.Warn("deposit notification not queued", "account_id", accountID, "error", nerr)
				}
			}
		case ledger.AlreadyApplied:
		case ledger.StorageError:
			errs = append(errs, fmt.Errorf("apply %s: %w", rec.TxHash, err))
		default:
			r.log.Warn("failed deposit not applied", "tx_hash", rec.TxHash, "outcome", out.String())
		}
	}

	if !havePrice {
		errs = append(errs, fmt.Errorf("retry skipped: %w", price.ErrUnavailable))
	}
	return errors.Join(errs...)
}

func (r *Retrier) expired(rec *models.TransactionRecord) bool {
	return r.d.MaxAge > 0 && r.now().Sub(rec.CreatedAt) > r.d.MaxAge
}
