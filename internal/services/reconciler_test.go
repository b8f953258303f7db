package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/dedup"
	"github.com/RezaTaheri01/telegram-store-bot/internal/feed"
	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger/ledgertest"
	"github.com/RezaTaheri01/telegram-store-bot/internal/memo"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
)

// ---------------------------------------------------------------------------
// In-memory collaborators for the reconciler and retrier.
// ---------------------------------------------------------------------------

type stubFeed struct {
	mu      sync.Mutex
	entries []feed.Entry
	err     error
	calls   int
}

func (f *stubFeed) Transactions(context.Context, string, int, string) ([]feed.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]feed.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

type stubSettings struct{ s models.Settings }

func (s stubSettings) Get(context.Context) (models.Settings, error) { return s.s, nil }

func defaultSettings() stubSettings {
	return stubSettings{s: models.Settings{
		WalletCurrency:     "USD",
		WalletCurrencySign: "$",
		DepositAddress:     "EQDdeposit",
		FetchLimit:         20,
	}}
}

// stubPrices is both the reconciler's price cache and the ledger's guard.
type stubPrices struct {
	mu    sync.Mutex
	quote *price.Quote
}

func (p *stubPrices) set(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v == "" {
		p.quote = nil
		return
	}
	p.quote = &price.Quote{Currency: "USD", Value: decimal.RequireFromString(v), Source: "test", FetchedAt: time.Now()}
}

func (p *stubPrices) Cached(string) (price.Quote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quote == nil {
		return price.Quote{}, false
	}
	return *p.quote, true
}

type memCursor struct {
	mu       sync.Mutex
	value    int64
	advances []int64
	advErr   error
}

func (c *memCursor) Get(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *memCursor) Advance(_ context.Context, _ string, lt int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advErr != nil {
		return 0, c.advErr
	}
	c.advances = append(c.advances, lt)
	if lt > c.value {
		c.value = lt
	}
	return c.value, nil
}

func (c *memCursor) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type notification struct {
	accountID int64
	amount    decimal.Decimal
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) DepositCredited(_ context.Context, accountID int64, amount decimal.Decimal, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{accountID, amount})
	return nil
}

// spySet wraps a MemorySet and mirrors its contents for assertions.
type spySet struct {
	inner  *dedup.MemorySet
	mu     sync.Mutex
	marked map[string]bool
}

func newSpySet(t *testing.T) *spySet {
	t.Helper()
	inner, err := dedup.NewMemorySet(100)
	if err != nil {
		t.Fatal(err)
	}
	return &spySet{inner: inner, marked: make(map[string]bool)}
}

func (s *spySet) Mark(ctx context.Context, hash string) (bool, error) {
	fresh, err := s.inner.Mark(ctx, hash)
	if err == nil {
		s.mu.Lock()
		s.marked[hash] = true
		s.mu.Unlock()
	}
	return fresh, err
}

func (s *spySet) Unmark(ctx context.Context, hash string) error {
	s.mu.Lock()
	delete(s.marked, hash)
	s.mu.Unlock()
	return s.inner.Unmark(ctx, hash)
}

func (s *spySet) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked[hash]
}

func (s *spySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marked)
}

type harness struct {
	db       *ledgertest.DB
	ledger   *ledger.Service
	feed     *stubFeed
	prices   *stubPrices
	cursor   *memCursor
	recent   *spySet
	notifier *recordingNotifier
	rec      *Reconciler
	missed   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:       ledgertest.New(),
		feed:     &stubFeed{},
		prices:   &stubPrices{},
		cursor:   &memCursor{},
		notifier: &recordingNotifier{},
	}
	h.prices.set("2.5")
	h.recent = newSpySet(t)
	h.ledger = ledger.NewService(ledger.Deps{
		DB: h.db, Accounts: h.db, Records: h.db, Inventory: h.db, Payments: h.db, Prices: h.prices,
	})
	h.rec = h.reconciler(h.ledger)
	return h
}

func (h *harness) reconciler(l DepositLedger) *Reconciler {
	return NewReconciler(ReconcilerDeps{
		Feed:           h.feed,
		Settings:       defaultSettings(),
		Prices:         h.prices,
		Cursor:         h.cursor,
		CursorKey:      "deposit_cursor",
		Ledger:         l,
		Records:        h.db,
		Accounts:       h.db,
		Recent:         h.recent,
		Memo:           memo.HexParser{},
		Notifier:       h.notifier,
		OnPriceMissing: func() { h.missed++ },
	})
}

func (h *harness) retrier(maxAge time.Duration) *Retrier {
	return NewRetrier(RetrierDeps{
		Records:  h.db,
		Ledger:   h.ledger,
		Settings: defaultSettings(),
		Prices:   h.prices,
		Notifier: h.notifier,
		MaxAge:   maxAge,
	})
}

func entry(hash string, lt int64, memoText string, nano int64) feed.Entry {
	return feed.Entry{Hash: hash, LT: lt, Memo: memoText, Value: nano}
}

const oneTON = 1_000_000_000

func assertBalance(t *testing.T, db *ledgertest.DB, id int64, want string) {
	t.Helper()
	if got := db.Balance(id); !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("balance of %d = %s, want %s", id, got, want)
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestReconcile_CreditsNewDeposit(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON)}

	if err := h.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertBalance(t, h.db, 42, "2.5")
	rec, ok := h.db.RecordByHash("h1")
	if !ok || rec.AtomicFailed {
		t.Fatalf("record = %+v, %v", rec, ok)
	}
	if rec.LT == nil || *rec.LT != 5 {
		t.Fatalf("record lt = %v", rec.LT)
	}
	if h.cursor.get() != 5 {
		t.Fatalf("cursor = %d, want 5", h.cursor.get())
	}
	if len(h.notifier.sent) != 1 || !h.notifier.sent[0].amount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("notifications = %+v", h.notifier.sent)
	}
}

func TestReconcile_RedeliveryIsFilteredByCursor(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON)}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.rec.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	assertBalance(t, h.db, 42, "2.5")
	if n := len(h.db.Records()); n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
	if len(h.cursor.advances) != 1 {
		t.Fatalf("cursor advanced %d times, want 1", len(h.cursor.advances))
	}
}

func TestReconcile_UnknownAccountIsSkippedButResolved(t *testing.T) {
	h := newHarness(t)
	h.feed.entries = []feed.Entry{entry("h9", 7, "ff", oneTON)}

	if err := h.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.db.Records()) != 0 {
		t.Fatal("record created for unknown account")
	}
	if h.cursor.get() != 7 {
		t.Fatalf("cursor = %d, want 7", h.cursor.get())
	}
}

func TestReconcile_LedgerFailureRecordsThenRetrierApplies(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON)}
	h.db.FailInsert = errors.New("connection reset")
	ctx := context.Background()

	if err := h.rec.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	assertBalance(t, h.db, 42, "0")
	rec, ok := h.db.RecordByHash("h1")
	if !ok || !rec.AtomicFailed {
		t.Fatalf("expected atomic_failed record, got %+v, %v", rec, ok)
	}
	if h.cursor.get() != 5 {
		t.Fatalf("cursor = %d, want 5", h.cursor.get())
	}

	h.prices.set("3")
	r := h.retrier(0)
	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("retrier: %v", err)
	}
	assertBalance(t, h.db, 42, "3")
	rec, _ = h.db.RecordByHash("h1")
	if rec.AtomicFailed || !rec.PricePerUnit.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("record not applied: %+v", rec)
	}

	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("second retrier cycle: %v", err)
	}
	assertBalance(t, h.db, 42, "3")
	if len(h.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.notifier.sent))
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestReconcile_NoDoubleCreditAcrossReplays(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.db.AddAccount(43, "0")
	ctx := context.Background()

	pages := [][]feed.Entry{
		{entry("a", 1, "2a", oneTON), entry("b", 2, "2b", oneTON)},
		{entry("b", 2, "2b", oneTON), entry("c", 3, "2a", oneTON)},
		{entry("a", 1, "2a", oneTON), entry("c", 3, "2a", oneTON), entry("d", 4, "2b", oneTON)},
	}
	for _, p := range pages {
		h.feed.entries = p
		if err := h.rec.RunCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}

	// A cursor regression and a cold recency set must still not re-credit.
	h.cursor.value = 0
	fresh, _ := dedup.NewMemorySet(100)
	h.rec.d.Recent = fresh
	if err := h.rec.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	assertBalance(t, h.db, 42, "5")
	assertBalance(t, h.db, 43, "5")
	if n := len(h.db.Records()); n != 4 {
		t.Fatalf("records = %d, want 4", n)
	}
}

func TestReconcile_SameHashTwiceInOneBatch(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON), entry("h1", 6, "2a", oneTON)}

	if err := h.rec.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "2.5")
	if h.cursor.get() != 6 {
		t.Fatalf("cursor = %d, want 6", h.cursor.get())
	}
}

func TestReconcile_StaleMarkWithoutRecordIsProcessed(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	ctx := context.Background()

	// A mark left behind by a cycle that died before writing anything.
	if _, err := h.recent.Mark(ctx, "hX"); err != nil {
		t.Fatal(err)
	}
	h.feed.entries = []feed.Entry{entry("hX", 5, "2a", oneTON)}

	if err := h.rec.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "2.5")
	if _, ok := h.db.RecordByHash("hX"); !ok {
		t.Fatal("expected a record for hX")
	}
	if h.cursor.get() != 5 {
		t.Fatalf("cursor = %d, want 5", h.cursor.get())
	}
}

func TestReconcile_MarkWithRecordIsResolved(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	ctx := context.Background()
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON)}

	if err := h.rec.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	// Replay with the mark still present and the cursor rewound.
	h.cursor.value = 0
	if err := h.rec.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "2.5")
	if n := len(h.db.Records()); n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
	if h.cursor.get() != 5 {
		t.Fatalf("cursor = %d, want 5", h.cursor.get())
	}
}

type brokenLookup struct{}

func (brokenLookup) ExistsByHash(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestReconcile_MarkedHashHaltsWhenLookupFails(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	ctx := context.Background()
	if _, err := h.recent.Mark(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	rec := h.reconciler(h.ledger)
	rec.d.Records = brokenLookup{}
	h.feed.entries = []feed.Entry{entry("a", 1, "zz", oneTON), entry("b", 2, "2a", oneTON)}

	if err := rec.RunCycle(ctx); err == nil {
		t.Fatal("expected halt error")
	}
	if h.cursor.get() != 1 {
		t.Fatalf("cursor = %d, want 1", h.cursor.get())
	}
	assertBalance(t, h.db, 42, "0")
}

// failingLedger fails credits and fallback writes for chosen hashes.
type failingLedger struct {
	DepositLedger
	failCredit   map[string]bool
	failFallback map[string]bool
	order        []int64
}

func (f *failingLedger) Credit(ctx context.Context, req ledger.CreditRequest) (ledger.Outcome, error) {
	if req.LT != nil {
		f.order = append(f.order, *req.LT)
	}
	if f.failCredit[req.TxHash] {
		return ledger.StorageError, errors.New("deadlock detected")
	}
	return f.DepositLedger.Credit(ctx, req)
}

func (f *failingLedger) RecordFailed(ctx context.Context, d ledger.FailedDeposit) error {
	if f.failFallback[d.TxHash] {
		return errors.New("disk full")
	}
	return f.DepositLedger.RecordFailed(ctx, d)
}

func TestReconcile_AppliesInPositionOrder(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	fl := &failingLedger{DepositLedger: h.ledger}
	rec := h.reconciler(fl)
	h.feed.entries = []feed.Entry{entry("c", 30, "2a", oneTON), entry("a", 10, "2a", oneTON), entry("b", 20, "2a", oneTON)}

	if err := rec.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fl.order) != 3 || fl.order[0] != 10 || fl.order[1] != 20 || fl.order[2] != 30 {
		t.Fatalf("credit order = %v, want [10 20 30]", fl.order)
	}
	assertBalance(t, h.db, 42, "7.5")
}

func TestReconcile_HaltsWhenFallbackWriteFails(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	fl := &failingLedger{
		DepositLedger: h.ledger,
		failCredit:    map[string]bool{"b": true},
		failFallback:  map[string]bool{"b": true},
	}
	rec := h.reconciler(fl)
	h.feed.entries = []feed.Entry{entry("a", 1, "2a", oneTON), entry("b", 2, "2a", oneTON), entry("c", 3, "2a", oneTON)}
	ctx := context.Background()

	if err := rec.RunCycle(ctx); err == nil {
		t.Fatal("expected halt error")
	}
	if h.cursor.get() != 1 {
		t.Fatalf("cursor = %d, want 1", h.cursor.get())
	}
	assertBalance(t, h.db, 42, "2.5")
	if h.recent.Contains("b") {
		t.Fatal("hash b should be unmarked for a later cycle")
	}
	if h.recent.Contains("c") {
		t.Fatal("entry after the halt must not be touched")
	}

	// Once storage recovers the next cycle picks up where it stopped.
	fl.failCredit, fl.failFallback = nil, nil
	if err := rec.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "7.5")
	if h.cursor.get() != 3 {
		t.Fatalf("cursor = %d, want 3", h.cursor.get())
	}
}

func TestReconcile_CursorNeverDecreases(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.cursor.value = 50
	h.feed.entries = []feed.Entry{entry("old", 10, "2a", oneTON), entry("new", 60, "2a", oneTON)}

	if err := h.rec.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.db.RecordByHash("old"); ok {
		t.Fatal("entry below the cursor was applied")
	}
	for _, v := range h.cursor.advances {
		if v < 50 {
			t.Fatalf("cursor advanced backwards to %d", v)
		}
	}
	if h.cursor.get() != 60 {
		t.Fatalf("cursor = %d, want 60", h.cursor.get())
	}
}

// ---------------------------------------------------------------------------
// Aborted cycles
// ---------------------------------------------------------------------------

func TestReconcile_NoPriceAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.prices.set("")
	h.feed.entries = []feed.Entry{entry("h1", 5, "2a", oneTON)}

	err := h.rec.RunCycle(context.Background())
	if !errors.Is(err, price.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if h.missed != 1 {
		t.Fatalf("out-of-band refresh requested %d times, want 1", h.missed)
	}
	if h.cursor.get() != 0 || len(h.db.Records()) != 0 || h.recent.Len() != 0 {
		t.Fatal("aborted cycle left state behind")
	}
}

func TestReconcile_FeedErrorAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.feed.err = errors.New("toncenter 502")

	if err := h.rec.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.cursor.get() != 0 || len(h.cursor.advances) != 0 {
		t.Fatal("cursor moved on feed error")
	}
}

func TestReconcile_BadMemoAndZeroAmountAreResolved(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	h.feed.entries = []feed.Entry{
		entry("x", 1, "hello world", oneTON),
		entry("y", 2, "", oneTON),
		entry("z", 3, "2a", 0),
	}

	if err := h.rec.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.cursor.get() != 3 || len(h.db.Records()) != 0 {
		t.Fatalf("cursor = %d, records = %d", h.cursor.get(), len(h.db.Records()))
	}
}

// ---------------------------------------------------------------------------
// Retrier
// ---------------------------------------------------------------------------

func seedFailed(t *testing.T, h *harness, hash, memoText string) {
	t.Helper()
	acc := int64(42)
	if err := h.ledger.RecordFailed(context.Background(), ledger.FailedDeposit{
		AccountID: &acc, Amount: decimal.NewFromInt(2), TxHash: hash, Memo: memoText, Currency: "USD",
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRetrier_SkipsWithoutPrice(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	seedFailed(t, h, "h1", "2a")
	h.prices.set("")
	missed := 0
	r := h.retrier(0)
	r.d.OnPriceMissing = func() { missed++ }

	err := r.RunCycle(context.Background())
	if !errors.Is(err, price.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if missed != 1 {
		t.Fatalf("missed = %d", missed)
	}
	assertBalance(t, h.db, 42, "0")
	failed, _ := h.db.ListFailed(context.Background())
	if len(failed) != 1 {
		t.Fatal("record should stay failed")
	}
}

func TestRetrier_ExpiresOldRecords(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	seedFailed(t, h, "old", "2a")
	r := h.retrier(time.Hour)
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "0")
	failed, _ := h.db.ListFailed(context.Background())
	if len(failed) != 0 {
		t.Fatal("expired record still listed")
	}
	// The hash is free again once the record is soft-deleted.
	if ok, _ := h.db.ExistsByHash(context.Background(), "old"); ok {
		t.Fatal("soft-deleted record still blocks its hash")
	}
}

func TestRetrier_BadMemoStaysFailed(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	seedFailed(t, h, "h1", "not-hex")

	if err := h.retrier(0).RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	failed, _ := h.db.ListFailed(context.Background())
	if len(failed) != 1 {
		t.Fatal("record should stay failed")
	}
}

func TestRetrier_StorageErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(42, "0")
	seedFailed(t, h, "h1", "2a")
	h.db.FailMarkApplied = errors.New("serialization failure")

	if err := h.retrier(0).RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	assertBalance(t, h.db, 42, "0")

	if err := h.retrier(0).RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, h.db, 42, "5")
}

// ---------------------------------------------------------------------------
// Purchase flow
// ---------------------------------------------------------------------------

type stubProducts map[uuid.UUID]*models.Product

func (s stubProducts) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

type recordingDelivery struct {
	items [][]byte
	err   error
}

func (d *recordingDelivery) ItemDelivered(_ context.Context, _ int64, _ *models.Product, sealed []byte) error {
	d.items = append(d.items, sealed)
	return d.err
}

func TestPurchase_Outcomes(t *testing.T) {
	h := newHarness(t)
	h.db.AddAccount(7, "10")
	product := &models.Product{ID: uuid.New(), Name: "Netflix 1 month", Price: decimal.NewFromInt(4)}
	h.db.AddItem(product.ID, []byte("sealed-1"))
	delivery := &recordingDelivery{err: errors.New("queue down")}
	flow := NewPurchaseFlow(stubProducts{product.ID: product}, h.ledger, delivery, nil)
	ctx := context.Background()

	res, err := flow.Purchase(ctx, 7, product.ID)
	if err != nil || res.Outcome != ledger.Success || res.Item == nil {
		t.Fatalf("first purchase = %+v, %v", res, err)
	}
	if len(delivery.items) != 1 || string(delivery.items[0]) != "sealed-1" {
		t.Fatalf("delivery = %q", delivery.items)
	}
	assertBalance(t, h.db, 7, "6")

	if res, _ := flow.Purchase(ctx, 7, product.ID); res.Outcome != ledger.SoldOut {
		t.Fatalf("second purchase = %v", res.Outcome)
	}
	h.db.AddItem(product.ID, []byte("sealed-2"))
	h.db.AddItem(product.ID, []byte("sealed-3"))
	if res, _ := flow.Purchase(ctx, 7, product.ID); res.Outcome != ledger.Success {
		t.Fatalf("third purchase = %v", res.Outcome)
	}
	if res, _ := flow.Purchase(ctx, 7, product.ID); res.Outcome != ledger.InsufficientFunds {
		t.Fatalf("fourth purchase = %v", res.Outcome)
	}
	if res, _ := flow.Purchase(ctx, 99, product.ID); res.Outcome != ledger.NoSuchAccount {
		t.Fatalf("unknown buyer = %v", res.Outcome)
	}
	if res, _ := flow.Purchase(ctx, 7, uuid.New()); res.Outcome != ledger.SoldOut {
		t.Fatalf("unknown product = %v", res.Outcome)
	}
	assertBalance(t, h.db, 7, "2")
}
