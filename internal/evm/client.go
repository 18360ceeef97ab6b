package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"multisig-trader/internal/errs"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultAttempts   = 4
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultPollPeriod = 2 * time.Second
)

// HTTPClient implements RPCProvider over HTTP JSON-RPC 2.0. Transport
// retries go through the shared retry policy: transport faults and
// rate limits are retried, node-level RPC errors are not.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	policy     retry.Policy
	pollPeriod time.Duration
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets how many times a failed call is retried on top
// of the initial attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.policy.MaxAttempts = n + 1
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.policy.Base = d
	}
}

// WithPollPeriod sets the receipt polling period.
func WithPollPeriod(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.pollPeriod = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates an EVM JSON-RPC client for one endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		policy: retry.Policy{
			MaxAttempts: DefaultAttempts,
			Base:        DefaultRetryDelay,
			Cap:         DefaultMaxDelay,
			Retriable:   errs.IsRetriable,
		},
		pollPeriod: DefaultPollPeriod,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ RPCProvider = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC method call under the retry policy.
// Failure classification drives retriability: a transport fault maps to
// RPC_CONNECTION_FAILED and HTTP 429 to API_RATE_LIMITED (both
// retriable); an error object from the node itself is final and
// returned as-is.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	return c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return errs.Wrap(errs.RPCConnectionFailed, err, "%s request failed", method)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return errs.Wrap(errs.RPCConnectionFailed, err, "read %s response", method)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return errs.New(errs.APIRateLimited, "%s rate limited (429)", method)
		}
		if resp.StatusCode != http.StatusOK {
			return errs.New(errs.RPCConnectionFailed, "%s unexpected status %d: %s", method, resp.StatusCode, string(respBody))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	})
}

// Code returns the contract bytecode at addr.
func (c *HTTPClient) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_getCode", []interface{}{addr, "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Balance returns the native balance of addr in wei.
func (c *HTTPClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_getBalance", []interface{}{addr, "latest"}, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// Call performs a read-only eth_call.
func (c *HTTPClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", []interface{}{msg, "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FeeData reads current gas pricing. The priority fee is probed with
// eth_maxPriorityFeePerGas; chains that reject the method yield legacy
// pricing only.
func (c *HTTPClient) FeeData(ctx context.Context) (*FeeData, error) {
	var gasPrice hexutil.Big
	if err := c.call(ctx, "eth_gasPrice", nil, &gasPrice); err != nil {
		return nil, err
	}

	fd := &FeeData{GasPrice: (*big.Int)(&gasPrice)}

	var tip hexutil.Big
	if err := c.call(ctx, "eth_maxPriorityFeePerGas", nil, &tip); err == nil {
		fd.MaxPriorityFeePerGas = (*big.Int)(&tip)
		// maxFee = gasPrice + tip covers the base fee plus the tip on
		// every chain we target.
		fd.MaxFeePerGas = new(big.Int).Add(fd.GasPrice, fd.MaxPriorityFeePerGas)
	}

	return fd, nil
}

// SendRaw broadcasts a signed raw transaction.
func (c *HTTPClient) SendRaw(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var result common.Hash
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Bytes(rawTx)}, &result); err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// Nonce returns the pending nonce for addr.
func (c *HTTPClient) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_getTransactionCount", []interface{}{addr, "pending"}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// ChainID returns the chain's numeric id.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// rawReceipt is the wire form of a receipt. Status stays raw so the
// tolerant decoding in parseStatus can handle every provider
// convention.
type rawReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	Status          json.RawMessage `json:"status"`
	Logs            []rawLog        `json:"logs"`
}

type rawLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// parseStatus decodes the provider's status convention: hex quantity
// ("0x1"), plain number, the string "success", or a boolean. Returns
// (known, ok).
func parseStatus(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "0x1", "1", "success", "true":
			return true, true
		default:
			return true, false
		}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return true, b
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return true, n == 1
	}
	return false, false
}

// WaitReceipt polls for the transaction receipt until mined or timed
// out. A timeout surfaces as TRANSACTION_TIMEOUT (retriable).
func (c *HTTPClient) WaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollPeriod)
	defer ticker.Stop()

	for {
		var raw *rawReceipt
		if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
			return nil, err
		}
		if raw != nil && raw.BlockNumber != nil {
			rcpt := &Receipt{
				TxHash:  raw.TransactionHash,
				GasUsed: uint64(raw.GasUsed),
			}
			rcpt.BlockNumber = (*big.Int)(raw.BlockNumber)
			rcpt.statusKnown, rcpt.statusOK = parseStatus(raw.Status)
			for _, l := range raw.Logs {
				rcpt.Logs = append(rcpt.Logs, Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
			}
			return rcpt, nil
		}

		if time.Now().After(deadline) {
			return nil, errs.New(errs.TransactionTimeout, "transaction %s not mined within %s", hash.Hex(), timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
