package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
)

// ProductCatalog is the subset of the product repository the handler needs.
type ProductCatalog interface {
	Create(ctx context.Context, p *models.Product) error
	ListAvailable(ctx context.Context) ([]*models.Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// InventoryStock adds and counts unsold items.
type InventoryStock interface {
	CreateItems(ctx context.Context, productID uuid.UUID, payloads [][]byte) ([]*models.InventoryItem, error)
	CountAvailable(ctx context.Context, productID uuid.UUID) (int, error)
}

// PayloadSealer encrypts item payloads before they are stored.
type PayloadSealer interface {
	Seal(plaintext []byte) ([]byte, error)
}

// PriceReader returns the cached quote when one is fresh.
type PriceReader interface {
	Cached(currency string) (price.Quote, bool)
}

// ProductHandler serves /v1/products endpoints.
type ProductHandler struct {
	Products  ProductCatalog
	Inventory InventoryStock
	Sealer    PayloadSealer
	Prices    PriceReader
	Settings  SettingsReader
	Logger    *slog.Logger
}

type productView struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// List handles GET /v1/products?lang=xx. Only products with stock are listed.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	list, err := h.Products.ListAvailable(r.Context())
	if err != nil {
		h.Logger.Error("list products", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]productView, 0, len(list))
	for _, p := range list {
		n, err := h.Inventory.CountAvailable(r.Context(), p.ID)
		if err != nil {
			h.Logger.Error("count stock", "product_id", p.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if n == 0 {
			continue
		}
		out = append(out, productView{ID: p.ID.String(), Name: p.DisplayName(lang), Price: p.Price, Stock: n})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- POST /v1/products ---

type createProductRequest struct {
	Name   string `json:"name"`
	NameEN string `json:"name_en"`
	NameFA string `json:"name_fa"`
	Price  string `json:"price"`
}

// Create adds a catalogue entry. It is not listed until it has stock.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Price)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	p := &models.Product{
		Name:   strings.TrimSpace(req.Name),
		NameEN: strings.TrimSpace(req.NameEN),
		NameFA: strings.TrimSpace(req.NameFA),
		Price:  amount,
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.Products.Create(r.Context(), p); err != nil {
		h.Logger.Error("create product", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.Logger.Info("product created", "product_id", p.ID, "name", p.Name)
	writeJSON(w, http.StatusCreated, p)
}

// --- POST /v1/products/{id}/items ---

type stockRequest struct {
	Payloads []string `json:"payloads"`
}

type stockResponse struct {
	ProductID string   `json:"product_id"`
	ItemIDs   []string `json:"item_ids"`
	Stock     int      `json:"stock"`
}

// Stock seals each payload and stores it as one unsold item of the product.
// All items of a request are stored together or not at all.
func (h *ProductHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Payloads) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Products.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.Logger.Error("load product", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sealed := make([][]byte, 0, len(req.Payloads))
	for _, p := range req.Payloads {
		b, err := h.Sealer.Seal([]byte(p))
		if err != nil {
			h.Logger.Error("seal payload", "product_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		sealed = append(sealed, b)
	}
	items, err := h.Inventory.CreateItems(r.Context(), id, sealed)
	if err != nil {
		h.Logger.Error("store items", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	n, err := h.Inventory.CountAvailable(r.Context(), id)
	if err != nil {
		h.Logger.Error("count stock", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := stockResponse{ProductID: id.String(), ItemIDs: make([]string, 0, len(items)), Stock: n}
	for _, it := range items {
		resp.ItemIDs = append(resp.ItemIDs, it.ID.String())
	}
	h.Logger.Info("inventory stocked", "product_id", id, "added", len(items), "stock", n)
	writeJSON(w, http.StatusCreated, resp)
}

// --- GET /v1/products/{id}/quote ---

type quoteResponse struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	TonPrice  decimal.Decimal `json:"ton_price"`
	TonNeeded decimal.Decimal `json:"ton_needed"`
}

var quoteMargin = decimal.RequireFromString("0.05")

// TonNeeded is the TON a buyer should deposit to cover amount at tonPrice,
// padded by a small margin and rounded to 2 places.
func TonNeeded(amount, tonPrice decimal.Decimal) decimal.Decimal {
	return amount.Div(tonPrice).Add(quoteMargin).Round(2)
}

// Quote handles GET /v1/products/{id}/quote. 503 when no fresh price is cached.
func (h *ProductHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.Logger.Error("load product", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Logger.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	q, ok := h.Prices.Cached(s.WalletCurrency)
	if !ok || !q.Value.IsPositive() {
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		ProductID: p.ID.String(),
		Price:     p.Price,
		Currency:  s.WalletCurrency,
		TonPrice:  q.Value,
		TonNeeded: TonNeeded(p.Price, q.Value),
	})
}
