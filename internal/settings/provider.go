// Package settings serves the bot_settings row with a short-TTL cache.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

const cacheKey = "bot_settings"

// Store loads and saves the persisted settings. Load returns nil, nil when
// no row exists yet.
type Store interface {
	Load(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, s *models.Settings) error
}

// Provider returns settings merged over defaults. Values are immutable per
// read: callers get a copy.
type Provider struct {
	store    Store
	defaults models.Settings
	cache    *gocache.Cache
	ttl      time.Duration
	log      *slog.Logger
}

func NewProvider(store Store, defaults models.Settings, ttl time.Duration, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		store:    store,
		defaults: defaults,
		cache:    gocache.New(ttl, 2*ttl),
		ttl:      ttl,
		log:      log,
	}
}

// Get returns the current settings, loading them if the cache is cold.
func (p *Provider) Get(ctx context.Context) (models.Settings, error) {
	if v, ok := p.cache.Get(cacheKey); ok {
		return v.(models.Settings), nil
	}
	stored, err := p.store.Load(ctx)
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s := Merge(p.defaults, stored)
	p.cache.Set(cacheKey, s, p.ttl)
	return s, nil
}

// Invalidate drops the cached copy so the next Get reloads.
func (p *Provider) Invalidate() {
	p.cache.Delete(cacheKey)
	p.log.Info("settings cache invalidated")
}

// Update applies patch to the stored settings and invalidates the cache.
func (p *Provider) Update(ctx context.Context, patch Patch) (models.Settings, error) {
	stored, err := p.store.Load(ctx)
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var next models.Settings
	if stored != nil {
		next = *stored
	}
	patch.Apply(&next)
	if err := p.store.Save(ctx, &next); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	p.Invalidate()
	return p.Get(ctx)
}

// Merge fills every empty field of stored from defaults.
func Merge(defaults models.Settings, stored *models.Settings) models.Settings {
	if stored == nil {
		return defaults
	}
	s := *stored
	if s.WalletCurrency == "" {
		s.WalletCurrency = defaults.WalletCurrency
	}
	if s.WalletCurrencySign == "" {
		s.WalletCurrencySign = defaults.WalletCurrencySign
	}
	if s.DepositAddress == "" {
		s.DepositAddress = defaults.DepositAddress
	}
	if s.FetchLimit <= 0 {
		s.FetchLimit = defaults.FetchLimit
	}
	if s.TonAPIKey == "" {
		s.TonAPIKey = defaults.TonAPIKey
	}
	if s.CMCAPIKey == "" {
		s.CMCAPIKey = defaults.CMCAPIKey
	}
	if s.NetworkAPIKey == "" {
		s.NetworkAPIKey = defaults.NetworkAPIKey
	}
	if s.PriceDelay <= 0 {
		s.PriceDelay = defaults.PriceDelay
	}
	if s.NetworkDelay <= 0 {
		s.NetworkDelay = defaults.NetworkDelay
	}
	if s.FailedTxDelay <= 0 {
		s.FailedTxDelay = defaults.FailedTxDelay
	}
	if s.WalletLink == "" {
		s.WalletLink = defaults.WalletLink
	}
	return s
}
