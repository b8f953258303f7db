package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/dedup"
	"github.com/RezaTaheri01/telegram-store-bot/internal/feed"
	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/memo"
	"github.com/RezaTaheri01/telegram-store-bot/internal/metrics"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
)

// FeedSource lists recent transfers to an address.
type FeedSource interface {
	Transactions(ctx context.Context, address string, limit int, apiKey string) ([]feed.Entry, error)
}

// SettingsSource supplies the current bot settings.
type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

// PriceCache returns the current quote if a fresh one is cached.
type PriceCache interface {
	Cached(currency string) (price.Quote, bool)
}

// CursorStore is the durable feed watermark.
type CursorStore interface {
	Get(ctx context.Context, key string) (int64, error)
	Advance(ctx context.Context, key string, lt int64) (int64, error)
}

// DepositLedger is the part of the ledger the reconciler drives.
type DepositLedger interface {
	Credit(ctx context.Context, req ledger.CreditRequest) (ledger.Outcome, error)
	RecordFailed(ctx context.Context, d ledger.FailedDeposit) error
}

// RecordLookup checks for an existing live record by hash.
type RecordLookup interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

// AccountLookup checks that an account exists.
type AccountLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// DepositNotifier tells an account holder about a credit.
type DepositNotifier interface {
	DepositCredited(ctx context.Context, accountID int64, amount decimal.Decimal, unit string) error
}

// ReconcilerDeps wires a Reconciler. OnPriceMissing, if set, is called when
// a cycle is skipped for lack of a price.
type ReconcilerDeps struct {
	Feed           FeedSource
	Settings       SettingsSource
	Prices         PriceCache
	Cursor         CursorStore
	CursorKey      string
	Ledger         DepositLedger
	Records        RecordLookup
	Accounts       AccountLookup
	Recent         dedup.RecencySet
	Memo           memo.Parser
	Notifier       DepositNotifier
	OnPriceMissing func()
	Logger         *slog.Logger
}

// Reconciler credits deposits seen on the feed. One call to RunCycle is
// one poll; calls must not overlap.
type Reconciler struct {
	d   ReconcilerDeps
	log *slog.Logger
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Memo == nil {
		d.Memo = memo.HexParser{}
	}
	return &Reconciler{d: d, log: d.Logger}
}

// entryResult says what happened to one feed entry.
type entryResult string

const (
	resultCredited       entryResult = "credited"
	resultRecordedFailed entryResult = "recorded_failed"
	resultDuplicate      entryResult = "duplicate"
	resultSeenRecently   entryResult = "seen_recently"
	resultBadMemo        entryResult = "bad_memo"
	resultUnknownAccount entryResult = "unknown_account"
	resultZeroAmount     entryResult = "zero_amount"
)

// RunCycle fetches, filters and applies one page of the feed, then moves
// the cursor over the resolved prefix. A halted batch still advances the
// cursor up to the last resolved entry before returning the error.
func (r *Reconciler) RunCycle(ctx context.Context) error {
	s, err := r.d.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	entries, err := r.d.Feed.Transactions(ctx, s.DepositAddress, s.FetchLimit, s.NetworkAPIKey)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}

	quote, ok := r.d.Prices.Cached(s.WalletCurrency)
	if !ok {
		if r.d.OnPriceMissing != nil {
			r.d.OnPriceMissing()
		}
		return fmt.Errorf("reconcile skipped: %w", price.ErrUnavailable)
	}

	cursor, err := r.d.Cursor.Get(ctx, r.d.CursorKey)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	pending := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if e.LT > cursor {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].LT < pending[j].LT })

	hwm := cursor
	var haltErr error
	resolved := make(map[string]struct{}, len(pending))
	for _, e := range pending {
		res, err := r.apply(ctx, e, quote, s.WalletCurrencySign, resolved)
		if err != nil {
			haltErr = fmt.Errorf("entry %s at lt %d: %w", e.Hash, e.LT, err)
			r.log.Error("reconcile batch halted", "tx_hash", e.Hash, "lt", e.LT, "error", err)
			break
		}
		metrics.ReconcilerEntries.WithLabelValues(string(res)).Inc()
		resolved[e.Hash] = struct{}{}
		hwm = e.LT
	}

	if hwm > cursor {
		if _, err := r.d.Cursor.Advance(ctx, r.d.CursorKey, hwm); err != nil {
			r.log.Error("cursor advance failed", "from", cursor, "to", hwm, "error", err)
			if haltErr == nil {
				return fmt.Errorf("advance cursor: %w", err)
			}
		}
	}
	return haltErr
}

// apply resolves one entry. A non-nil error means the entry is unresolved
// and the batch must stop before it. resolved holds the hashes this cycle
// already settled; a recency mark for any other hash is only trusted once a
// live record backs it.
func (r *Reconciler) apply(ctx context.Context, e feed.Entry, quote price.Quote, unit string, resolved map[string]struct{}) (entryResult, error) {
	fresh, err := r.d.Recent.Mark(ctx, e.Hash)
	if err != nil {
		r.log.Warn("recency set unavailable", "tx_hash", e.Hash, "error", err)
		fresh = true
	}
	if !fresh {
		if _, ok := resolved[e.Hash]; ok {
			return resultSeenRecently, nil
		}
		dup, err := r.d.Records.ExistsByHash(ctx, e.Hash)
		if err != nil {
			return "", fmt.Errorf("check record for marked hash: %w", err)
		}
		if dup {
			return resultDuplicate, nil
		}
		// Left over from an interrupted cycle or another instance.
		r.log.Warn("recency mark without record, reprocessing", "tx_hash", e.Hash)
	}

	accountID, err := r.d.Memo.AccountID(e.Memo)
	if err != nil {
		r.log.Warn("deposit skipped, bad memo", "tx_hash", e.Hash, "memo", e.Memo, "error", err)
		return resultBadMemo, nil
	}
	exists, err := r.d.Accounts.Exists(ctx, accountID)
	if err != nil {
		r.unmark(ctx, e.Hash)
		return "", fmt.Errorf("check account %d: %w", accountID, err)
	}
	if !exists {
		r.log.Warn("deposit skipped, unknown account", "tx_hash", e.Hash, "account_id", accountID)
		return resultUnknownAccount, nil
	}
	dup, err := r.d.Records.ExistsByHash(ctx, e.Hash)
	if err != nil {
		r.unmark(ctx, e.Hash)
		return "", fmt.Errorf("check record: %w", err)
	}
	if dup {
		return resultDuplicate, nil
	}

	amount := e.Amount()
	if !amount.IsPositive() {
		r.log.Warn("deposit skipped, zero amount", "tx_hash", e.Hash, "account_id", accountID)
		return resultZeroAmount, nil
	}

	lt := e.LT
	out, err := r.d.Ledger.Credit(ctx, ledger.CreditRequest{
		AccountID: accountID,
		Amount:    amount,
		TxHash:    e.Hash,
		Memo:      e.Memo,
		LT:        &lt,
		Quote:     quote,
	})
	switch out {
	case ledger.Success:
		r.log.Info("deposit credited", "tx_hash", e.Hash, "account_id", accountID, "amount", amount.String(), "price", quote.Value.String())
		r.notify(ctx, accountID, models.Settle(amount, quote.Value), unit)
		return resultCredited, nil
	case ledger.AlreadyApplied:
		return resultDuplicate, nil
	case ledger.NoSuchAccount:
		r.log.Warn("deposit skipped, account vanished", "tx_hash", e.Hash, "account_id", accountID)
		return resultUnknownAccount, nil
	}

	r.log.Warn("credit failed, recording for retry", "tx_hash", e.Hash, "outcome", out.String(), "error", err)
	ferr := r.d.Ledger.RecordFailed(ctx, ledger.FailedDeposit{
		AccountID: &accountID,
		Amount:    amount,
		TxHash:    e.Hash,
		Memo:      e.Memo,
		LT:        &lt,
		Price:     quote.Value,
		Currency:  quote.Currency,
	})
	if ferr != nil {
		r.unmark(ctx, e.Hash)
		return "", fmt.Errorf("record failed deposit: %w", ferr)
	}
	return resultRecordedFailed, nil
}

func (r *Reconciler) unmark(ctx context.Context, hash string) {
	if err := r.d.Recent.Unmark(ctx, hash); err != nil {
		r.log.Warn("recency unmark failed", "tx_hash", hash, "error", err)
	}
}

func (r *Reconciler) notify(ctx context.Context, accountID int64, credited decimal.Decimal, unit string) {
	if r.d.Notifier == nil {
		return
	}
	if err := r.d.Notifier.DepositCredited(ctx, accountID, credited, unit); err != nil {
		r.log.Warn("deposit notification not queued", "account_id", accountID, "error", err)
	}
}
