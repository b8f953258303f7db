package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/memo"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// AccountStore is the subset of the account repository the handler needs.
type AccountStore interface {
	EnsureAccount(ctx context.Context, id int64, language string) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	SetLanguage(ctx context.Context, id int64, language string) error
}

// HistoryStore lists credited deposits.
type HistoryStore interface {
	ListHistory(ctx context.Context, accountID int64, page int) ([]*models.TransactionRecord, bool, error)
}

// PurchaseStore lists purchased items.
type PurchaseStore interface {
	ListPurchases(ctx context.Context, buyerID int64, page int) ([]*models.Purchase, bool, error)
}

// PayloadOpener unseals inventory payloads.
type PayloadOpener interface {
	Open(sealed []byte) ([]byte, error)
}

// SettingsReader supplies the current bot settings.
type SettingsReader interface {
	Get(ctx context.Context) (models.Settings, error)
}

// AccountHandler serves /v1/accounts endpoints.
type AccountHandler struct {
	Accounts  AccountStore
	History   HistoryStore
	Bought    PurchaseStore
	Opener    PayloadOpener
	Settings  SettingsReader
	Logger    *slog.Logger
}

// --- POST /v1/accounts ---

type ensureAccountRequest struct {
	ID       int64  `json:"id"`
	Language string `json:"language"`
}

// Ensure handles POST /v1/accounts. It creates the account on first contact
// and otherwise updates the language if one is given. 201 when created.
func (h *AccountHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = models.LangEnglish
	}
	created, err := h.Accounts.EnsureAccount(r.Context(), req.ID, lang)
	if err != nil {
		h.Logger.Error("ensure account", "account_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !created && req.Language != "" {
		if err := h.Accounts.SetLanguage(r.Context(), req.ID, req.Language); err != nil {
			h.Logger.Error("set language", "account_id", req.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	acc, err := h.Accounts.GetByID(r.Context(), req.ID)
	if err != nil {
		h.Logger.Error("load account", "account_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, acc)
}

// --- GET /v1/accounts/{id}/balance ---

type balanceResponse struct {
	AccountID    int64           `json:"account_id"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	CurrencySign string          `json:"currency_sign"`
	WalletLink   string          `json:"wallet_link,omitempty"`
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.load(w, r)
	if !ok {
		return
	}
	s, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Logger.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		AccountID:    acc.ID,
		Balance:      acc.Balance,
		Currency:     s.WalletCurrency,
		CurrencySign: s.WalletCurrencySign,
		WalletLink:   s.WalletLink,
	})
}

// --- GET /v1/accounts/{id}/deposit-link ---

type depositLinkResponse struct {
	Address string `json:"address"`
	Memo    string `json:"memo"`
	Link    string `json:"link"`
}

func (h *AccountHandler) DepositLink(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.load(w, r)
	if !ok {
		return
	}
	s, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Logger.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.DepositAddress == "" {
		writeError(w, http.StatusServiceUnavailable, "deposit address not configured")
		return
	}
	writeJSON(w, http.StatusOK, depositLinkResponse{
		Address: s.DepositAddress,
		Memo:    memo.Encode(acc.ID),
		Link:    memo.DepositLink(s.DepositAddress, acc.ID),
	})
}

// --- GET /v1/accounts/{id}/transactions ---

type transactionView struct {
	TxHash       string          `json:"tx_hash"`
	Amount       decimal.Decimal `json:"amount"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Credited     decimal.Decimal `json:"credited"`
	Currency     string          `json:"currency"`
	PaidAt       time.Time       `json:"paid_at"`
}

type pageResponse[T any] struct {
	Page    int  `json:"page"`
	HasNext bool `json:"has_next"`
	Items   []T  `json:"items"`
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.load(w, r)
	if !ok {
		return
	}
	page := pageParam(r)
	recs, hasNext, err := h.History.ListHistory(r.Context(), acc.ID, page)
	if err != nil {
		h.Logger.Error("list history", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]transactionView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, transactionView{
			TxHash:       rec.TxHash,
			Amount:       rec.Amount,
			PricePerUnit: rec.PricePerUnit,
			Credited:     rec.Settlement(),
			Currency:     rec.PriceCurrency,
			PaidAt:       rec.PaidAt,
		})
	}
	writeJSON(w, http.StatusOK, pageResponse[transactionView]{Page: page, HasNext: hasNext, Items: items})
}

// --- GET /v1/accounts/{id}/purchases ---

type purchaseView struct {
	ItemID      string          `json:"item_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Payload     string          `json:"payload"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// Purchases returns the buyer's items with their payloads unsealed. An item
// that fails to unseal is listed without its payload.
func (h *AccountHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.load(w, r)
	if !ok {
		return
	}
	page := pageParam(r)
	list, hasNext, err := h.Bought.ListPurchases(r.Context(), acc.ID, page)
	if err != nil {
		h.Logger.Error("list purchases", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]purchaseView, 0, len(list))
	for _, p := range list {
		v := purchaseView{
			ItemID:      p.ItemID.String(),
			ProductID:   p.ProductID.String(),
			ProductName: p.ProductName,
			Price:       p.Price,
			PurchasedAt: p.PurchasedAt,
		}
		if plain, err := h.Opener.Open(p.Payload); err != nil {
			h.Logger.Error("unseal payload", "item_id", p.ItemID, "error", err)
		} else {
			v.Payload = string(plain)
		}
		items = append(items, v)
	}
	writeJSON(w, http.StatusOK, pageResponse[purchaseView]{Page: page, HasNext: hasNext, Items: items})
}

// load resolves the {id} path value to an existing account, writing the
// error response itself when it cannot.
func (h *AccountHandler) load(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	id, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return nil, false
	}
	acc, err := h.Accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return nil, false
		}
		h.Logger.Error("load account", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return acc, true
}
