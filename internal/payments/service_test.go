package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger/ledgertest"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// ---------------------------------------------------------------------------
// Mock store: writes through to the in-memory ledger database
// ---------------------------------------------------------------------------

type memStore struct {
	db        *ledgertest.DB
	conflicts int
	err       error
	codes     []string
}

func (m *memStore) Create(_ context.Context, p *models.Payment) error {
	m.codes = append(m.codes, p.Code)
	if m.err != nil {
		return m.err
	}
	if m.conflicts > 0 {
		m.conflicts--
		return &pgconn.PgError{Code: "23505"}
	}
	m.db.AddPayment(*p)
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *ledgertest.DB) {
	t.Helper()
	db := ledgertest.New()
	db.AddAccount(42, "0")
	l := ledger.NewService(ledger.Deps{DB: db, Accounts: db, Records: db, Inventory: db, Payments: db})
	store := &memStore{db: db}
	return NewService(store, l, "test-secret", 30*time.Minute, "https://shop.example/pay"), store, db
}

func TestCreateThenConfirm(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	link, err := svc.Create(ctx, 42, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.NotEmpty(t, link.Payment.Code)
	assert.False(t, link.Payment.IsPaid)
	assert.True(t, strings.HasPrefix(link.URL, "https://shop.example/pay?token="))

	p, out, err := svc.Confirm(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.Success, out)
	assert.True(t, p.IsPaid)
	assert.True(t, db.Balance(42).Equal(decimal.RequireFromString("12.5")))

	_, out, err = svc.Confirm(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyApplied, out)
	assert.True(t, db.Balance(42).Equal(decimal.RequireFromString("12.5")))
}

func TestCreate_RejectsNonPositiveAmount(t *testing.T) {
	svc, store, _ := newTestService(t)
	for _, a := range []string{"0", "-1"} {
		_, err := svc.Create(context.Background(), 42, decimal.RequireFromString(a))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Empty(t, store.codes)
}

func TestCreate_RetriesCodeCollision(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.conflicts = 1

	link, err := svc.Create(context.Background(), 42, decimal.NewFromInt(5))
	require.NoError(t, err)
	require.Len(t, store.codes, 2)
	assert.NotEqual(t, store.codes[0], store.codes[1])
	assert.Equal(t, store.codes[1], link.Payment.Code)
}

func TestCreate_StoreError(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.err = errors.New("pool closed")

	_, err := svc.Create(context.Background(), 42, decimal.NewFromInt(5))
	require.Error(t, err)
	assert.Len(t, store.codes, 1)
}

func TestConfirm_ExpiredToken(t *testing.T) {
	svc, _, db := newTestService(t)
	link, err := svc.Create(context.Background(), 42, decimal.NewFromInt(5))
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	_, out, err := svc.Confirm(context.Background(), link.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentExpired, out)
	assert.True(t, db.Balance(42).IsZero())
}

func TestConfirm_RejectsForgedTokens(t *testing.T) {
	svc, _, db := newTestService(t)
	link, err := svc.Create(context.Background(), 42, decimal.NewFromInt(5))
	require.NoError(t, err)

	other := NewService(nil, nil, "other-secret", time.Minute, "")
	forged, err := other.sign(link.Payment, time.Now())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{Code: link.Payment.Code})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{"wrong secret": forged, "alg none": unsigned, "garbage": "a.b.c"} {
		t.Run(name, func(t *testing.T) {
			_, out, err := svc.Confirm(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Equal(t, ledger.PaymentNotFound, out)
		})
	}
	assert.True(t, db.Balance(42).IsZero())
}

func TestConfirm_UnknownCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	tok, err := svc.sign(&models.Payment{Code: "nope", AccountID: 42, ExpiresAt: time.Now().Add(time.Minute)}, time.Now())
	require.NoError(t, err)

	_, out, err := svc.Confirm(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentNotFound, out)
}
