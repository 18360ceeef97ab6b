package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/retry"
)

// HTTPProvider implements RouteProvider against the aggregator's JSON
// API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewHTTPProvider creates an aggregator client for baseURL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		policy: retry.Policy{
			MaxAttempts: 3,
			Base:        500 * time.Millisecond,
			Cap:         4 * time.Second,
			Retriable:   errs.IsRetriable,
		},
	}
}

var _ RouteProvider = (*HTTPProvider)(nil)

// quotePayload is the aggregator's wire response.
type quotePayload struct {
	To               string `json:"to"`
	Data             string `json:"data"`
	Value            string `json:"value"`
	Gas              uint64 `json:"gas"`
	AllowanceTarget  string `json:"allowanceTarget"`
	BuyAmount        string `json:"buyAmount"`
	ValidationErrors []struct {
		Reason string `json:"reason"`
	} `json:"validationErrors"`
}

// Quote fetches an executable route. Network and rate-limit failures
// retry with capped exponential backoff; aggregator-reported liquidity
// and slippage problems map to their taxonomy codes and do not.
func (p *HTTPProvider) Quote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = DefaultSlippageBps
	}

	sellContract := req.SellBinding.ContractAddress
	if req.SellBinding.IsNative {
		sellContract = domain.NativeTokenAddress
	}
	buyContract := req.BuyBinding.ContractAddress
	if req.BuyBinding.IsNative {
		buyContract = domain.NativeTokenAddress
	}

	q := url.Values{}
	q.Set("chain", string(req.NetworkKey))
	q.Set("taker", req.WalletAddress.Hex())
	q.Set("sellToken", sellContract.Hex())
	q.Set("buyToken", buyContract.Hex())
	q.Set("sellAmount", req.SellAmountRaw.String())
	q.Set("slippageBps", fmt.Sprintf("%d", slippage))
	u := fmt.Sprintf("%s/swap/quote?%s", p.baseURL, q.Encode())

	var payload quotePayload
	err := p.policy.Do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return errs.Wrap(errs.SwapQuoteFailed, err, "aggregator unreachable")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.SwapQuoteFailed, err, "read aggregator response")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return errs.New(errs.APIRateLimited, "aggregator rate limited")
		case resp.StatusCode >= 500:
			return errs.New(errs.SwapQuoteFailed, "aggregator status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return classifyQuoteRejection(body)
		}

		if err := json.Unmarshal(body, &payload); err != nil {
			return errs.Wrap(errs.SwapQuoteFailed, err, "decode aggregator response")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := hexutil.Decode(payload.Data)
	if err != nil {
		return nil, errs.Wrap(errs.SwapQuoteFailed, err, "malformed calldata in quote")
	}

	value := new(big.Int)
	if payload.Value != "" {
		if _, ok := value.SetString(payload.Value, 10); !ok {
			return nil, errs.New(errs.SwapQuoteFailed, "malformed value %q in quote", payload.Value)
		}
	}

	quote := &domain.Quote{
		To:      common.HexToAddress(payload.To),
		Data:    data,
		Value:   value,
		GasHint: payload.Gas,
		Spender: common.HexToAddress(payload.AllowanceTarget),
	}
	if payload.BuyAmount != "" {
		if hint, ok := new(big.Int).SetString(payload.BuyAmount, 10); ok {
			quote.BuyAmountHintRaw = hint
		}
	}
	return quote, nil
}

// classifyQuoteRejection maps aggregator 4xx reasons onto the closed
// code set.
func classifyQuoteRejection(body []byte) error {
	var payload quotePayload
	json.Unmarshal(body, &payload)
	for _, ve := range payload.ValidationErrors {
		reason := strings.ToLower(ve.Reason)
		if strings.Contains(reason, "liquidity") {
			return errs.New(errs.InsufficientLiquidity, "aggregator reports insufficient liquidity").
				WithRecommendation("reduce the position size or try a deeper market")
		}
		if strings.Contains(reason, "slippage") {
			return errs.New(errs.SlippageTooHigh, "aggregator rejects the slippage tolerance").
				WithRecommendation("raise the slippage tolerance or reduce the size")
		}
	}
	return errs.New(errs.SwapQuoteFailed, "aggregator rejected the quote: %s", strings.TrimSpace(string(body)))
}

// minAmountPayload is the advisory wire response.
type minAmountPayload struct {
	MinSellAmount string `json:"minSellAmount"`
}

// MinSellAmountRaw fetches the aggregator's minimum-amount advisory.
func (p *HTTPProvider) MinSellAmountRaw(ctx context.Context, symbol string, network domain.NetworkKey) (*big.Int, error) {
	u := fmt.Sprintf("%s/swap/min-amount?symbol=%s&chain=%s", p.baseURL, url.QueryEscape(symbol), url.QueryEscape(string(network)))

	var payload minAmountPayload
	err := p.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return errs.Wrap(errs.SwapQuoteFailed, err, "aggregator unreachable")
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			payload.MinSellAmount = "0"
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return errs.New(errs.SwapQuoteFailed, "aggregator min-amount status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&payload)
	})
	if err != nil {
		return nil, err
	}

	min, ok := new(big.Int).SetString(payload.MinSellAmount, 10)
	if !ok {
		return new(big.Int), nil
	}
	return min, nil
}
