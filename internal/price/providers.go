package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Credentials are the provider API keys, read from settings on every refresh.
type Credentials struct {
	TonAPIKey string
	CMCAPIKey string
}

// Provider fetches the TON price in one currency from one upstream API.
type Provider interface {
	Name() string
	Price(ctx context.Context, currency string, creds Credentials) (decimal.Decimal, error)
}

var errMissingKey = errors.New("api key not configured")

// httpSource is the transport shared by the HTTP providers.
type httpSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(baseURL string, timeout time.Duration, every time.Duration) httpSource {
	return httpSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

func (s httpSource) getJSON(ctx context.Context, path string, q url.Values, header http.Header, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	u := s.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// TonAPI reads /v2/rates from tonapi.io. The free tier allows one request
// per second.
type TonAPI struct{ src httpSource }

func NewTonAPI(baseURL string, timeout time.Duration) *TonAPI {
	return &TonAPI{src: newHTTPSource(baseURL, timeout, time.Second)}
}

func (p *TonAPI) Name() string { return "tonapi" }

func (p *TonAPI) Price(ctx context.Context, currency string, creds Credentials) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("tokens", "ton")
	q.Set("currencies", strings.ToLower(currency))
	header := http.Header{}
	if creds.TonAPIKey != "" {
		header.Set("Authorization", "Bearer "+creds.TonAPIKey)
	}
	var body struct {
		Rates map[string]struct {
			Prices map[string]*decimal.Decimal `json:"prices"`
		} `json:"rates"`
	}
	if err := p.src.getJSON(ctx, "/v2/rates", q, header, &body); err != nil {
		return decimal.Zero, err
	}
	return pick(body.Rates["TON"].Prices[strings.ToUpper(currency)])
}

// CoinGecko reads /api/v3/simple/price. No key is needed.
type CoinGecko struct{ src httpSource }

func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	return &CoinGecko{src: newHTTPSource(baseURL, timeout, 2*time.Second)}
}

func (p *CoinGecko) Name() string { return "coingecko" }

func (p *CoinGecko) Price(ctx context.Context, currency string, _ Credentials) (decimal.Decimal, error) {
	cur := strings.ToLower(currency)
	q := url.Values{}
	q.Set("ids", "the-open-network")
	q.Set("vs_currencies", cur)
	var body map[string]map[string]*decimal.Decimal
	if err := p.src.getJSON(ctx, "/api/v3/simple/price", q, nil, &body); err != nil {
		return decimal.Zero, err
	}
	return pick(body["the-open-network"][cur])
}

// CoinMarketCap reads /v1/cryptocurrency/quotes/latest and needs a key.
type CoinMarketCap struct{ src httpSource }

func NewCoinMarketCap(baseURL string, timeout time.Duration) *CoinMarketCap {
	return &CoinMarketCap{src: newHTTPSource(baseURL, timeout, 2*time.Second)}
}

func (p *CoinMarketCap) Name() string { return "coinmarketcap" }

func (p *CoinMarketCap) Price(ctx context.Context, currency string, creds Credentials) (decimal.Decimal, error) {
	if creds.CMCAPIKey == "" {
		return decimal.Zero, errMissingKey
	}
	cur := strings.ToUpper(currency)
	q := url.Values{}
	q.Set("symbol", "TON")
	q.Set("convert", cur)
	header := http.Header{}
	header.Set("X-CMC_PRO_API_KEY", creds.CMCAPIKey)
	var body struct {
		Data map[string]struct {
			Quote map[string]struct {
				Price *decimal.Decimal `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := p.src.getJSON(ctx, "/v1/cryptocurrency/quotes/latest", q, header, &body); err != nil {
		return decimal.Zero, err
	}
	return pick(body.Data["TON"].Quote[cur].Price)
}

func pick(v *decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, errors.New("price field missing from response")
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", v)
	}
	return *v, nil
}
