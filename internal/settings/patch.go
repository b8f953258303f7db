package settings

import (
	"time"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// Patch is a partial settings update. Delays are in seconds.
type Patch struct {
	WalletCurrency     *string `json:"wallet_currency"`
	WalletCurrencySign *string `json:"wallet_currency_sign"`
	DepositAddress     *string `json:"ton_deposit_address"`
	FetchLimit         *int    `json:"ton_fetch_limit"`
	TonAPIKey          *string `json:"ton_api_io_key"`
	CMCAPIKey          *string `json:"cmc_api_key"`
	NetworkAPIKey      *string `json:"ton_network_api_key"`
	PriceDelay         *int    `json:"ton_price_delay"`
	NetworkDelay       *int    `json:"ton_network_delay"`
	FailedTxDelay      *int    `json:"failed_transactions_delay"`
	WalletLink         *string `json:"telegram_wallet_link"`
}

// Apply copies every set field of p into s.
func (p Patch) Apply(s *models.Settings) {
	setString(&s.WalletCurrency, p.WalletCurrency)
	setString(&s.WalletCurrencySign, p.WalletCurrencySign)
	setString(&s.DepositAddress, p.DepositAddress)
	setString(&s.TonAPIKey, p.TonAPIKey)
	setString(&s.CMCAPIKey, p.CMCAPIKey)
	setString(&s.NetworkAPIKey, p.NetworkAPIKey)
	setString(&s.WalletLink, p.WalletLink)
	if p.FetchLimit != nil {
		s.FetchLimit = *p.FetchLimit
	}
	setSeconds(&s.PriceDelay, p.PriceDelay)
	setSeconds(&s.NetworkDelay, p.NetworkDelay)
	setSeconds(&s.FailedTxDelay, p.FailedTxDelay)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Second
	}
}
