package models

import "time"

// Settings is the runtime-tunable bot configuration.
type Settings struct {
	WalletCurrency     string        `json:"wallet_currency"`
	WalletCurrencySign string        `json:"wallet_currency_sign"`
	DepositAddress     string        `json:"ton_deposit_address"`
	FetchLimit         int           `json:"ton_fetch_limit"`
	TonAPIKey          string        `json:"-"`
	CMCAPIKey          string        `json:"-"`
	NetworkAPIKey      string        `json:"-"`
	PriceDelay         time.Duration `json:"ton_price_delay"`
	NetworkDelay       time.Duration `json:"ton_network_delay"`
	FailedTxDelay      time.Duration `json:"failed_transactions_delay"`
	WalletLink         string        `json:"telegram_wallet_link"`
}
