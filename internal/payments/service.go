// Package payments issues and confirms signed web top-up links.
//
// A payment row is created with a unique code and an expiry. The link the
// user receives carries a JWT over that code; confirming the link verifies
// the signature and hands the code to the ledger, which credits the account
// at most once.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidToken  = errors.New("invalid payment token")
)

// Store persists new payments.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
}

// Confirmer credits a payment by code.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, code string) (*models.Payment, ledger.Outcome, error)
}

// Link is a created payment and the URL that confirms it.
type Link struct {
	Payment *models.Payment `json:"payment"`
	Token   string          `json:"token"`
	URL     string          `json:"url"`
}

type Service struct {
	store     Store
	confirmer Confirmer
	secret    []byte
	ttl       time.Duration
	baseURL   string
	now       func() time.Time
}

func NewService(store Store, confirmer Confirmer, secret string, ttl time.Duration, baseURL string) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		store:     store,
		confirmer: confirmer,
		secret:    []byte(secret),
		ttl:       ttl,
		baseURL:   baseURL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type claims struct {
	jwt.RegisteredClaims
	Code string `json:"code"`
}

const maxCodeAttempts = 3

// Create stores an unpaid payment for accountID and returns its link.
func (s *Service) Create(ctx context.Context, accountID int64, amount decimal.Decimal) (*Link, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := s.now()
	p := &models.Payment{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		ExpiresAt: now.Add(s.ttl),
	}
	var err error
	for i := 0; i < maxCodeAttempts; i++ {
		p.Code = newCode()
		if err = s.store.Create(ctx, p); err == nil || !ledger.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	token, err := s.sign(p, now)
	if err != nil {
		return nil, fmt.Errorf("sign payment: %w", err)
	}
	return &Link{Payment: p, Token: token, URL: s.linkURL(token)}, nil
}

// Confirm verifies token and credits the payment it names. An expired
// token reports PaymentExpired without touching storage.
func (s *Service) Confirm(ctx context.Context, token string) (*models.Payment, ledger.Outcome, error) {
	c, err := s.parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ledger.PaymentExpired, nil
		}
		return nil, ledger.PaymentNotFound, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return s.confirmer.ConfirmPayment(ctx, c.Code)
}

func (s *Service) sign(p *models.Payment, now time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.AccountID, 10),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Code: p.Code,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) parse(token string) (*claims, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Code == "" {
		return nil, errors.New("malformed claims")
	}
	return c, nil
}

func (s *Service) linkURL(token string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "?token=" + url.QueryEscape(token)
}

func newCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
