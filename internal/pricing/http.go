package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"multisig-trader/internal/errs"
	"multisig-trader/internal/retry"
)

// DefaultHTTPTimeout bounds each feed request.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPFeed implements PriceFeed against a JSON price API exposing
// GET /prices?symbols=A,B,C.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// HTTPFeedOption configures HTTPFeed.
type HTTPFeedOption func(*HTTPFeed)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) HTTPFeedOption {
	return func(f *HTTPFeed) {
		f.client = c
	}
}

// NewHTTPFeed creates a feed client for baseURL.
func NewHTTPFeed(baseURL string, opts ...HTTPFeedOption) *HTTPFeed {
	f := &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
		policy: retry.Policy{
			MaxAttempts: 3,
			Base:        500 * time.Millisecond,
			Cap:         4 * time.Second,
			Retriable:   errs.IsRetriable,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ PriceFeed = (*HTTPFeed)(nil)

// pricePayload is the wire form of one quote.
type pricePayload struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  string  `json:"priceUsd"`
	Change24h *string `json:"change24h"`
	Volume24h *string `json:"volume24h"`
	At        int64   `json:"at"` // unix ms
}

// GetPrice looks up a single symbol.
func (f *HTTPFeed) GetPrice(ctx context.Context, symbol string) (*PricePoint, error) {
	prices, err := f.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	p, ok := prices[symbol]
	if !ok {
		return nil, ErrUnknownToken
	}
	return p, nil
}

// GetPrices performs one batched lookup.
func (f *HTTPFeed) GetPrices(ctx context.Context, symbols []string) (map[string]*PricePoint, error) {
	if len(symbols) == 0 {
		return map[string]*PricePoint{}, nil
	}

	u := fmt.Sprintf("%s/prices?symbols=%s", f.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	var payload []pricePayload
	err := f.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return errs.Wrap(errs.PriceDataUnavailable, err, "price feed unreachable")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.PriceDataUnavailable, err, "read price feed response")
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return errs.New(errs.APIRateLimited, "price feed rate limited")
		}
		if resp.StatusCode != http.StatusOK {
			return errs.New(errs.PriceDataUnavailable, "price feed status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, &payload); err != nil {
			return errs.Wrap(errs.PriceDataUnavailable, err, "decode price feed response")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*PricePoint, len(payload))
	for _, p := range payload {
		price, err := decimal.NewFromString(p.PriceUSD)
		if err != nil {
			continue
		}
		point := &PricePoint{
			Symbol:   p.Symbol,
			PriceUSD: price,
			At:       time.UnixMilli(p.At),
		}
		if p.Change24h != nil {
			if d, err := decimal.NewFromString(*p.Change24h); err == nil {
				point.Change24h = d
			}
		}
		if p.Volume24h != nil {
			if d, err := decimal.NewFromString(*p.Volume24h); err == nil {
				point.Volume24h = d
			}
		}
		out[p.Symbol] = point
	}
	return out, nil
}
