// Package registry resolves token symbols to per-chain contract
// bindings, merging a built-in table with external metadata and
// DEX-listing sources.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
)

// Source looks up token bindings for a symbol. Both the token-metadata
// registry and the listing index satisfy this.
type Source interface {
	LookupTokenBindings(ctx context.Context, symbol string) ([]domain.TokenBinding, error)
}

// tokenPayload is the wire form shared by both HTTP sources.
type tokenPayload struct {
	Symbol     string `json:"symbol"`
	NetworkKey string `json:"networkKey"`
	Address    string `json:"address"`
	Decimals   int    `json:"decimals"`
	IsNative   bool   `json:"isNative"`
	// LiquidityUSD is reported by the listing index only.
	LiquidityUSD float64 `json:"liquidityUsd"`
}

// HTTPSource is a JSON lookup client used for both external sources.
// The listing index marks bindings verified when their reported
// liquidity clears the threshold.
type HTTPSource struct {
	baseURL            string
	client             *http.Client
	source             domain.BindingSource
	liquidityThreshold float64
}

// NewMetadataRegistry creates the token-metadata registry source.
func NewMetadataRegistry(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		source:  domain.SourceRegistry,
	}
}

// NewListingIndex creates the DEX listing-index source. Only the base
// side of listed pairs is reported by the service.
func NewListingIndex(baseURL string, liquidityThreshold float64) *HTTPSource {
	return &HTTPSource{
		baseURL:            strings.TrimRight(baseURL, "/"),
		client:             &http.Client{Timeout: 5 * time.Second},
		source:             domain.SourceDexListing,
		liquidityThreshold: liquidityThreshold,
	}
}

var _ Source = (*HTTPSource)(nil)

// LookupTokenBindings queries GET /tokens?symbol=X.
func (s *HTTPSource) LookupTokenBindings(ctx context.Context, symbol string) ([]domain.TokenBinding, error) {
	u := fmt.Sprintf("%s/tokens?symbol=%s", s.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.PriceDataUnavailable, err, "token source unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.PriceDataUnavailable, err, "read token source response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.New(errs.APIRateLimited, "token source rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.PriceDataUnavailable, "token source status %d: %s", resp.StatusCode, string(body))
	}

	var payload []tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode token source response: %w", err)
	}

	bindings := make([]domain.TokenBinding, 0, len(payload))
	for _, p := range payload {
		b := domain.TokenBinding{
			Symbol:          p.Symbol,
			NetworkKey:      domain.NetworkKey(p.NetworkKey),
			ContractAddress: common.HexToAddress(p.Address),
			Decimals:        p.Decimals,
			IsNative:        p.IsNative,
			Source:          s.source,
		}
		if s.source == domain.SourceDexListing {
			b.Verified = s.liquidityThreshold > 0 && p.LiquidityUSD >= s.liquidityThreshold
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}
