package price

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/RezaTaheri01/telegram-store-bot/internal/metrics"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

const lastPrefix = "last:"

// SettingsSource supplies the settlement currency and provider keys.
type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

// Oracle tries its providers in order and keeps the last good quote in a
// single-slot TTL cache.
type Oracle struct {
	providers []Provider
	settings  SettingsSource
	cache     *gocache.Cache
	ttl       time.Duration
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewOracle returns an Oracle. ttl bounds how long a quote is served by
// Cached; timeout bounds each provider call.
func NewOracle(settings SettingsSource, providers []Provider, ttl, timeout time.Duration, log *slog.Logger) *Oracle {
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		providers: providers,
		settings:  settings,
		cache:     gocache.New(ttl, 2*ttl),
		ttl:       ttl,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

// TTL is the validity window of a cached quote.
func (o *Oracle) TTL() time.Duration { return o.ttl }

// Refresh fetches a new quote. It returns on the first provider success.
func (o *Oracle) Refresh(ctx context.Context) (Quote, error) {
	s, err := o.settings.Get(ctx)
	if err != nil {
		return Quote{}, err
	}
	currency := normalizeCurrency(s.WalletCurrency)
	creds := Credentials{TonAPIKey: s.TonAPIKey, CMCAPIKey: s.CMCAPIKey}

	for _, p := range o.providers {
		pctx, cancel := context.WithTimeout(ctx, o.timeout)
		v, err := p.Price(pctx, currency, creds)
		cancel()
		if err != nil {
			metrics.PriceProviderFailures.WithLabelValues(p.Name()).Inc()
			o.log.Warn("price provider failed", "provider", p.Name(), "currency", currency, "error", err)
			continue
		}
		q := Quote{
			Currency:  currency,
			Value:     v.Round(Precision),
			Source:    p.Name(),
			FetchedAt: o.now(),
		}
		o.Store(q)
		return q, nil
	}
	o.log.Error("all price providers failed", "currency", currency)
	return Quote{}, ErrUnavailable
}

// Store puts q into the cache as the current quote for its currency.
func (o *Oracle) Store(q Quote) {
	q.Currency = normalizeCurrency(q.Currency)
	o.cache.Set(q.Currency, q, o.ttl)
	o.cache.Set(lastPrefix+q.Currency, q, gocache.NoExpiration)
}

// Cached returns the current quote if one was fetched within the TTL.
func (o *Oracle) Cached(currency string) (Quote, bool) {
	v, ok := o.cache.Get(normalizeCurrency(currency))
	if !ok {
		return Quote{}, false
	}
	q := v.(Quote)
	if !q.FreshAt(o.now(), o.ttl) {
		return Quote{}, false
	}
	return q, true
}

// Last returns the most recent quote regardless of age.
func (o *Oracle) Last(currency string) (Quote, bool) {
	v, ok := o.cache.Get(lastPrefix + normalizeCurrency(currency))
	if !ok {
		return Quote{}, false
	}
	return v.(Quote), true
}

// Invalidate drops the current quote; Last still returns it.
func (o *Oracle) Invalidate(currency string) {
	o.cache.Delete(normalizeCurrency(currency))
}

// RunCycle refreshes the quote; it is the body of the price job.
func (o *Oracle) RunCycle(ctx context.Context) error {
	_, err := o.Refresh(ctx)
	return err
}
