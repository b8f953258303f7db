package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/settings"
)

// SettingsAdmin reads and changes the runtime settings.
type SettingsAdmin interface {
	Get(ctx context.Context) (models.Settings, error)
	Update(ctx context.Context, patch settings.Patch) (models.Settings, error)
	Invalidate()
}

// SettingsHandler serves /v1/settings endpoints. OnChange, if set, is
// called with the fresh settings after an update or invalidation.
type SettingsHandler struct {
	Settings SettingsAdmin
	OnChange func(models.Settings)
	Logger   *slog.Logger
}

// settingsView hides API keys and renders delays in seconds.
type settingsView struct {
	WalletCurrency     string `json:"wallet_currency"`
	WalletCurrencySign string `json:"wallet_currency_sign"`
	DepositAddress     string `json:"ton_deposit_address"`
	FetchLimit         int    `json:"ton_fetch_limit"`
	PriceDelay         int    `json:"ton_price_delay"`
	NetworkDelay       int    `json:"ton_network_delay"`
	FailedTxDelay      int    `json:"failed_transactions_delay"`
	WalletLink         string `json:"telegram_wallet_link"`
	TonAPIKeySet       bool   `json:"ton_api_io_key_set"`
	CMCAPIKeySet       bool   `json:"cmc_api_key_set"`
	NetworkAPIKeySet   bool   `json:"ton_network_api_key_set"`
}

func viewSettings(s models.Settings) settingsView {
	return settingsView{
		WalletCurrency:     s.WalletCurrency,
		WalletCurrencySign: s.WalletCurrencySign,
		DepositAddress:     s.DepositAddress,
		FetchLimit:         s.FetchLimit,
		PriceDelay:         int(s.PriceDelay.Seconds()),
		NetworkDelay:       int(s.NetworkDelay.Seconds()),
		FailedTxDelay:      int(s.FailedTxDelay.Seconds()),
		WalletLink:         s.WalletLink,
		TonAPIKeySet:       s.TonAPIKey != "",
		CMCAPIKeySet:       s.CMCAPIKey != "",
		NetworkAPIKeySet:   s.NetworkAPIKey != "",
	}
}

// Get handles GET /v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Logger.Error("load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, viewSettings(s))
}

// Patch handles PATCH /v1/settings.
func (h *SettingsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s, err := h.Settings.Update(r.Context(), patch)
	if err != nil {
		h.Logger.Error("update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.Logger.Info("settings updated")
	h.changed(s)
	writeJSON(w, http.StatusOK, viewSettings(s))
}

// Invalidate handles POST /v1/settings/invalidate.
func (h *SettingsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.Settings.Invalidate()
	s, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Logger.Error("reload settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.changed(s)
	writeJSON(w, http.StatusOK, viewSettings(s))
}

func (h *SettingsHandler) changed(s models.Settings) {
	if h.OnChange != nil {
		h.OnChange(s)
	}
}
