package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// SettingsRepo reads and writes the single bot_settings row. Delays are
// stored in whole seconds; zero or empty columns mean "use the default".
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Load returns the stored row, or nil when none exists.
func (r *SettingsRepo) Load(ctx context.Context) (*models.Settings, error) {
	var (
		s                   models.Settings
		price, net, retries int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT wallet_currency, wallet_currency_sign, ton_deposit_address, ton_fetch_limit,
		       ton_api_io_key, cmc_api_key, ton_network_api_key,
		       ton_price_delay, ton_network_delay, failed_transactions_delay, telegram_wallet_link
		FROM bot_settings WHERE id = 1
	`).Scan(&s.WalletCurrency, &s.WalletCurrencySign, &s.DepositAddress, &s.FetchLimit,
		&s.TonAPIKey, &s.CMCAPIKey, &s.NetworkAPIKey,
		&price, &net, &retries, &s.WalletLink)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.PriceDelay = time.Duration(price) * time.Second
	s.NetworkDelay = time.Duration(net) * time.Second
	s.FailedTxDelay = time.Duration(retries) * time.Second
	return &s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, s *models.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bot_settings (id, wallet_currency, wallet_currency_sign, ton_deposit_address, ton_fetch_limit,
			ton_api_io_key, cmc_api_key, ton_network_api_key,
			ton_price_delay, ton_network_delay, failed_transactions_delay, telegram_wallet_link)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			wallet_currency = EXCLUDED.wallet_currency,
			wallet_currency_sign = EXCLUDED.wallet_currency_sign,
			ton_deposit_address = EXCLUDED.ton_deposit_address,
			ton_fetch_limit = EXCLUDED.ton_fetch_limit,
			ton_api_io_key = EXCLUDED.ton_api_io_key,
			cmc_api_key = EXCLUDED.cmc_api_key,
			ton_network_api_key = EXCLUDED.ton_network_api_key,
			ton_price_delay = EXCLUDED.ton_price_delay,
			ton_network_delay = EXCLUDED.ton_network_delay,
			failed_transactions_delay = EXCLUDED.failed_transactions_delay,
			telegram_wallet_link = EXCLUDED.telegram_wallet_link,
			updated_at = now()
	`, s.WalletCurrency, s.WalletCurrencySign, s.DepositAddress, s.FetchLimit,
		s.TonAPIKey, s.CMCAPIKey, s.NetworkAPIKey,
		int(s.PriceDelay/time.Second), int(s.NetworkDelay/time.Second), int(s.FailedTxDelay/time.Second), s.WalletLink)
	return err
}
