package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/payments"
)

// PaymentService issues and confirms web payment links.
type PaymentService interface {
	Create(ctx context.Context, accountID int64, amount decimal.Decimal) (*payments.Link, error)
	Confirm(ctx context.Context, token string) (*models.Payment, ledger.Outcome, error)
}

// PaymentHandler serves /v1/payments endpoints.
type PaymentHandler struct {
	Payments PaymentService
	Logger   *slog.Logger
}

type createPaymentRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    string `json:"amount"`
}

// Create handles POST /v1/payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	link, err := h.Payments.Create(r.Context(), req.AccountID, amount)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("create payment", "account_id", req.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

type confirmPaymentRequest struct {
	Token string `json:"token"`
}

type confirmPaymentResponse struct {
	Outcome string          `json:"outcome"`
	Payment *models.Payment `json:"payment,omitempty"`
}

var paymentStatus = map[ledger.Outcome]int{
	ledger.Success:         http.StatusOK,
	ledger.AlreadyApplied:  http.StatusConflict,
	ledger.PaymentExpired:  http.StatusGone,
	ledger.PaymentNotFound: http.StatusNotFound,
	ledger.NoSuchAccount:   http.StatusNotFound,
}

// Confirm handles POST /v1/payments/confirm.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, out, err := h.Payments.Confirm(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid payment token")
			return
		}
		h.Logger.Error("confirm payment", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status, ok := paymentStatus[out]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, confirmPaymentResponse{Outcome: out.String(), Payment: p})
}
