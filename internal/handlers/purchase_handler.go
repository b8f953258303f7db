package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/services"
)

// Purchaser runs the purchase flow.
type Purchaser interface {
	Purchase(ctx context.Context, accountID int64, productID uuid.UUID) (*services.PurchaseResult, error)
}

// PurchaseHandler serves POST /v1/purchases.
type PurchaseHandler struct {
	Flow   Purchaser
	Logger *slog.Logger
}

type purchaseRequest struct {
	AccountID int64  `json:"account_id"`
	ProductID string `json:"product_id"`
}

type purchaseResponse struct {
	Outcome     string          `json:"outcome"`
	ItemID      string          `json:"item_id,omitempty"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// outcomeStatus maps purchase outcomes to HTTP statuses. Refusals are not
// errors: the bot shows the outcome to the buyer.
var outcomeStatus = map[ledger.Outcome]int{
	ledger.Success:           http.StatusCreated,
	ledger.InsufficientFunds: http.StatusPaymentRequired,
	ledger.SoldOut:           http.StatusConflict,
	ledger.NoSuchAccount:     http.StatusNotFound,
	ledger.PriceUnavailable:  http.StatusServiceUnavailable,
}

// Create handles POST /v1/purchases.
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product_id")
		return
	}

	res, err := h.Flow.Purchase(r.Context(), req.AccountID, productID)
	if err != nil {
		h.Logger.Error("purchase", "account_id", req.AccountID, "product_id", productID, "error", err)
		writeError(w, http.StatusInternalServerError, "purchase failed")
		return
	}
	status, ok := outcomeStatus[res.Outcome]
	if !ok {
		status = http.StatusInternalServerError
	}
	resp := purchaseResponse{Outcome: res.Outcome.String()}
	if res.Product != nil {
		resp.ProductID = res.Product.ID.String()
		resp.ProductName = res.Product.Name
		resp.Price = res.Product.Price
	}
	if res.Item != nil {
		resp.ItemID = res.Item.ID.String()
	}
	writeJSON(w, status, resp)
}
