// Package feed reads incoming transfers to the deposit address from the
// toncenter HTTP API.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// NanoPerTON is the number of base units in one TON.
const NanoPerTON = 9

// Entry is one transfer as reported by the feed. The feed is unordered and
// may redeliver entries.
type Entry struct {
	Hash  string
	LT    int64
	Memo  string
	Value int64
}

// Amount returns the transfer amount in TON.
func (e Entry) Amount() decimal.Decimal {
	return decimal.New(e.Value, -NanoPerTON)
}

// Client calls GET /api/v2/getTransactions.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient returns a Client. Without an API key toncenter allows one
// request per second.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type transactionsResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result []struct {
		TransactionID struct {
			Hash string  `json:"hash"`
			LT   flexInt `json:"lt"`
		} `json:"transaction_id"`
		InMsg struct {
			Message string  `json:"message"`
			Value   flexInt `json:"value"`
		} `json:"in_msg"`
	} `json:"result"`
}

// Transactions fetches up to limit recent transactions for address.
// Entries without a hash or logical time are dropped.
func (c *Client) Transactions(ctx context.Context, address string, limit int, apiKey string) ([]Entry, error) {
	if address == "" {
		return nil, errors.New("deposit address not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))
	if apiKey != "" {
		q.Set("api_key", apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/getTransactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transactions: unexpected status %d", resp.StatusCode)
	}

	var body transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("feed error: %s", body.Error)
	}

	entries := make([]Entry, 0, len(body.Result))
	for _, r := range body.Result {
		if r.TransactionID.Hash == "" || !r.TransactionID.LT.set {
			continue
		}
		entries = append(entries, Entry{
			Hash:  r.TransactionID.Hash,
			LT:    r.TransactionID.LT.v,
			Memo:  strings.TrimSpace(r.InMsg.Message),
			Value: r.InMsg.Value.v,
		})
	}
	return entries, nil
}

// flexInt accepts an integer encoded as a JSON number or string.
type flexInt struct {
	v   int64
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", b, err)
	}
	f.v, f.set = n, true
	return nil
}
