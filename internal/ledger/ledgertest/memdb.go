// Package ledgertest provides a transactional in-memory store for tests of
// the ledger and of the services built on it.
//
// Row locks are real mutexes held until Commit or Rollback, writes are
// staged until Commit, and transaction hashes are unique across committed
// and in-flight transactions. That is enough to exercise the locking,
// atomicity and idempotency rules without Postgres.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// DB is a fake database implementing every store the ledger uses.
type DB struct {
	mu       sync.Mutex
	accounts map[int64]decimal.Decimal
	records  map[uuid.UUID]*models.TransactionRecord
	hashes   map[string]uuid.UUID
	reserved map[string]*Tx
	items    map[uuid.UUID]*models.InventoryItem
	payments map[string]*models.Payment
	locks    map[string]*sync.Mutex

	// Fault injection. Each is consumed by the next matching call.
	FailBegin       error
	FailInsert      error
	FailAddBalance  error
	FailCommit      error
	FailMarkApplied error
}

var (
	_ ledger.TxBeginner     = (*DB)(nil)
	_ ledger.AccountStore   = (*DB)(nil)
	_ ledger.RecordStore    = (*DB)(nil)
	_ ledger.InventoryStore = (*DB)(nil)
	_ ledger.PaymentStore   = (*DB)(nil)
)

func New() *DB {
	return &DB{
		accounts: make(map[int64]decimal.Decimal),
		records:  make(map[uuid.UUID]*models.TransactionRecord),
		hashes:   make(map[string]uuid.UUID),
		reserved: make(map[string]*Tx),
		items:    make(map[uuid.UUID]*models.InventoryItem),
		payments: make(map[string]*models.Payment),
		locks:    make(map[string]*sync.Mutex),
	}
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

func (db *DB) AddAccount(id int64, balance string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[id] = decimal.RequireFromString(balance)
}

func (db *DB) Balance(id int64) decimal.Decimal {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.accounts[id]
}

func (db *DB) HasAccount(id int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.accounts[id]
	return ok
}

// AddItem stocks one unit of productID and returns its id.
func (db *DB) AddItem(productID uuid.UUID, payload []byte) uuid.UUID {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := uuid.New()
	db.items[id] = &models.InventoryItem{
		ID:        id,
		ProductID: productID,
		Payload:   payload,
		CreatedAt: time.Now().Add(time.Duration(len(db.items)) * time.Millisecond),
	}
	return id
}

func (db *DB) Item(id uuid.UUID) models.InventoryItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.items[id]
}

func (db *DB) AddPayment(p models.Payment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := p
	db.payments[p.Code] = &cp
}

func (db *DB) Payment(code string) models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.payments[code]
}

// Records returns committed records ordered by creation.
func (db *DB) Records() []models.TransactionRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.TransactionRecord, 0, len(db.records))
	for _, r := range db.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RecordByHash returns the committed non-deleted record for hash.
func (db *DB) RecordByHash(hash string) (models.TransactionRecord, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.hashes[hash]
	if !ok {
		return models.TransactionRecord{}, false
	}
	return *db.records[id], true
}

// ---------------------------------------------------------------------------
// Lookups used by the services (outside a transaction)
// ---------------------------------------------------------------------------

func (db *DB) Exists(_ context.Context, id int64) (bool, error) {
	return db.HasAccount(id), nil
}

func (db *DB) ExistsByHash(_ context.Context, hash string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.hashes[hash]
	return ok, nil
}

func (db *DB) ListFailed(_ context.Context) ([]*models.TransactionRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.TransactionRecord
	for _, r := range db.records {
		if r.AtomicFailed && !r.IsDeleted {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (db *DB) ExpireFailed(_ context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.records[id]
	if !ok || !r.AtomicFailed {
		return nil
	}
	r.IsDeleted = true
	delete(db.hashes, r.TxHash)
	return nil
}

// ---------------------------------------------------------------------------
// ledger stores
// ---------------------------------------------------------------------------

func (db *DB) Begin(context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := take(&db.FailBegin); err != nil {
		return nil, err
	}
	return &Tx{db: db, held: make(map[string]*sync.Mutex)}, nil
}

func (db *DB) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*models.Account, error) {
	t := tx.(*Tx)
	t.lock(fmt.Sprintf("account:%d", id))
	db.mu.Lock()
	defer db.mu.Unlock()
	bal, ok := db.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.Account{ID: id, Balance: bal.Add(t.deltas[id])}, nil
}

func (db *DB) AddBalance(_ context.Context, tx pgx.Tx, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	t := tx.(*Tx)
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := take(&db.FailAddBalance); err != nil {
		return decimal.Zero, err
	}
	bal, ok := db.accounts[id]
	if !ok {
		return decimal.Zero, models.ErrNotFound
	}
	if t.deltas == nil {
		t.deltas = make(map[int64]decimal.Decimal)
	}
	next := bal.Add(t.deltas[id]).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, &pgconn.PgError{Code: "23514", Message: "balance_non_negative"}
	}
	t.deltas[id] = t.deltas[id].Add(delta)
	t.stage(func() { db.accounts[id] = db.accounts[id].Add(delta) })
	return next, nil
}

func (db *DB) InsertTx(_ context.Context, tx pgx.Tx, rec *models.TransactionRecord) error {
	t := tx.(*Tx)
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := take(&db.FailInsert); err != nil {
		return err
	}
	if _, dup := db.hashes[rec.TxHash]; dup {
		return &pgconn.PgError{Code: "23505", Message: "duplicate tx_hash"}
	}
	if owner, dup := db.reserved[rec.TxHash]; dup && owner != t {
		return &pgconn.PgError{Code: "23505", Message: "duplicate tx_hash"}
	}
	db.reserved[rec.TxHash] = t
	t.hashes = append(t.hashes, rec.TxHash)
	cp := *rec
	t.stage(func() {
		db.records[cp.ID] = &cp
		db.hashes[cp.TxHash] = cp.ID
	})
	return nil
}

func (db *DB) GetFailedForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.TransactionRecord, error) {
	tx.(*Tx).lock("record:" + id.String())
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.records[id]
	if !ok || !r.AtomicFailed || r.IsDeleted {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (db *DB) MarkApplied(_ context.Context, tx pgx.Tx, id uuid.UUID, accountID int64, price decimal.Decimal, currency string, paidAt time.Time) error {
	t := tx.(*Tx)
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := take(&db.FailMarkApplied); err != nil {
		return err
	}
	t.stage(func() {
		r := db.records[id]
		r.AtomicFailed = false
		r.AccountID = &accountID
		r.PricePerUnit = price
		r.PriceCurrency = currency
		r.PaidAt = paidAt
	})
	return nil
}

// LockAvailable behaves like SELECT ... FOR UPDATE SKIP LOCKED.
func (db *DB) LockAvailable(_ context.Context, tx pgx.Tx, productID uuid.UUID) (*models.InventoryItem, error) {
	t := tx.(*Tx)
	db.mu.Lock()
	var candidates []*models.InventoryItem
	for _, it := range db.items {
		if it.ProductID == productID && !it.IsPurchased && !it.IsDeleted {
			candidates = append(candidates, it)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	db.mu.Unlock()

	for _, it := range candidates {
		key := "item:" + it.ID.String()
		if !t.tryLock(key) {
			continue
		}
		db.mu.Lock()
		cur := *db.items[it.ID]
		db.mu.Unlock()
		if cur.IsPurchased {
			t.unlock(key)
			continue
		}
		return &cur, nil
	}
	return nil, models.ErrNotFound
}

func (db *DB) MarkPurchased(_ context.Context, tx pgx.Tx, itemID uuid.UUID, buyerID int64, at time.Time) error {
	tx.(*Tx).stage(func() {
		it := db.items[itemID]
		it.IsPurchased = true
		it.BuyerID = &buyerID
		it.PurchasedAt = &at
	})
	return nil
}

func (db *DB) GetByCodeForUpdate(_ context.Context, tx pgx.Tx, code string) (*models.Payment, error) {
	tx.(*Tx).lock("payment:" + code)
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.payments[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (db *DB) MarkPaid(_ context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	tx.(*Tx).stage(func() {
		for _, p := range db.payments {
			if p.ID == id {
				p.IsPaid = true
				p.PaidAt = &at
			}
		}
	})
	return nil
}

func (db *DB) rowLock(key string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.locks[key]
	if !ok {
		m = &sync.Mutex{}
		db.locks[key] = m
	}
	return m
}

func take(slot *error) error {
	err := *slot
	*slot = nil
	return err
}

// ---------------------------------------------------------------------------
// Tx
// ---------------------------------------------------------------------------

// Tx is a staged transaction. Only Commit and Rollback are meaningful among
// the pgx.Tx methods.
type Tx struct {
	db      *DB
	held    map[string]*sync.Mutex
	pending []func()
	hashes  []string
	deltas  map[int64]decimal.Decimal
	done    bool
}

func (t *Tx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.db.rowLock(key)
	m.Lock()
	t.held[key] = m
}

func (t *Tx) tryLock(key string) bool {
	if _, ok := t.held[key]; ok {
		return true
	}
	m := t.db.rowLock(key)
	if !m.TryLock() {
		return false
	}
	t.held[key] = m
	return true
}

func (t *Tx) unlock(key string) {
	if m, ok := t.held[key]; ok {
		delete(t.held, key)
		m.Unlock()
	}
}

func (t *Tx) stage(fn func()) { t.pending = append(t.pending, fn) }

func (t *Tx) finish() {
	for _, h := range t.hashes {
		if t.db.reserved[h] == t {
			delete(t.db.reserved, h)
		}
	}
	t.pending = nil
	t.done = true
}

func (t *Tx) release() {
	for key := range t.held {
		t.unlock(key)
	}
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.db.mu.Lock()
	if err := take(&t.db.FailCommit); err != nil {
		t.finish()
		t.db.mu.Unlock()
		t.release()
		return err
	}
	for _, fn := range t.pending {
		fn()
	}
	t.finish()
	t.db.mu.Unlock()
	t.release()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.db.mu.Lock()
	t.finish()
	t.db.mu.Unlock()
	t.release()
	return nil
}

var errUnsupported = errors.New("ledgertest: unsupported")

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, errUnsupported }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errUnsupported
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errUnsupported
}
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errUnsupported
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errUnsupported }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) Conn() *pgx.Conn                                         { return nil }
