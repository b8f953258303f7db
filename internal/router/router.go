package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RezaTaheri01/telegram-store-bot/internal/handlers"
	"github.com/RezaTaheri01/telegram-store-bot/internal/middleware"
	"github.com/RezaTaheri01/telegram-store-bot/internal/services"
)

// Handlers groups the endpoint handlers served under /v1.
type Handlers struct {
	Accounts  *handlers.AccountHandler
	Purchases *handlers.PurchaseHandler
	Products  *handlers.ProductHandler
	Payments  *handlers.PaymentHandler
	Settings  *handlers.SettingsHandler
}

// New returns the API mux. Every /v1 route except payment confirmation
// goes through auth; confirmation is authorized by its signed token.
// Routes with a JSON body are schema-checked before the handler runs.
func New(h Handlers, auth func(http.Handler) http.Handler, v middleware.BodyValidator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}
	validated := func(pattern, schema string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(middleware.ValidateBody(v, schema)(fn)))
	}

	// Accounts
	validated("POST /v1/accounts", services.SchemaAccount, h.Accounts.Ensure)
	protected("GET /v1/accounts/{id}/balance", h.Accounts.Balance)
	protected("GET /v1/accounts/{id}/deposit-link", h.Accounts.DepositLink)
	protected("GET /v1/accounts/{id}/transactions", h.Accounts.Transactions)
	protected("GET /v1/accounts/{id}/purchases", h.Accounts.Purchases)

	// Catalogue and purchases
	protected("GET /v1/products", h.Products.List)
	validated("POST /v1/products", services.SchemaProductCreate, h.Products.Create)
	validated("POST /v1/products/{id}/items", services.SchemaStockItems, h.Products.Stock)
	protected("GET /v1/products/{id}/quote", h.Products.Quote)
	validated("POST /v1/purchases", services.SchemaPurchase, h.Purchases.Create)

	// Web payments
	validated("POST /v1/payments", services.SchemaPaymentCreate, h.Payments.Create)
	mux.Handle("POST /v1/payments/confirm", middleware.ValidateBody(v, services.SchemaPaymentConfirm)(http.HandlerFunc(h.Payments.Confirm)))

	// Settings admin
	protected("GET /v1/settings", h.Settings.Get)
	validated("PATCH /v1/settings", services.SchemaSettingsPatch, h.Settings.Patch)
	protected("POST /v1/settings/invalidate", h.Settings.Invalidate)

	return mux
}
