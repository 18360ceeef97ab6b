package evm

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/errs"
)

func rpcServer(t *testing.T, handler func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_Balance(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "eth_getBalance" {
			t.Errorf("expected method eth_getBalance, got %s", req.Method)
		}
		return "0xde0b6b3a7640000" // 1 ether
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	bal, err := client.Balance(context.Background(), common.HexToAddress("0x1"))
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}

	want := new(big.Int).SetUint64(1_000_000_000_000_000_000)
	if bal.Cmp(want) != 0 {
		t.Errorf("expected %s, got %s", want, bal)
	}
}

func TestHTTPClient_Code_Empty(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return "0x"
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	code, err := client.Code(context.Background(), common.HexToAddress("0x1"))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if len(code) != 0 {
		t.Errorf("expected empty code, got %d bytes", len(code))
	}
}

func TestHTTPClient_FeeData_LegacyOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_gasPrice":
			resp["result"] = "0x3b9aca00" // 1 gwei
		case "eth_maxPriorityFeePerGas":
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	fd, err := client.FeeData(context.Background())
	if err != nil {
		t.Fatalf("FeeData: %v", err)
	}
	if fd.GasPrice.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Errorf("expected gas price 1 gwei, got %s", fd.GasPrice)
	}
	if fd.MaxPriorityFeePerGas != nil {
		t.Errorf("expected no tip on legacy chain, got %s", fd.MaxPriorityFeePerGas)
	}
}

func TestHTTPClient_WaitReceipt_Timeout(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return nil // never mined
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithPollPeriod(10*time.Millisecond))
	_, err := client.WaitReceipt(context.Background(), common.HexToHash("0xaa"), 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errs.IsCode(err, errs.TransactionTimeout) {
		t.Errorf("expected TRANSACTION_TIMEOUT, got %v", err)
	}
}

func TestParseStatus_Tolerance(t *testing.T) {
	cases := []struct {
		raw   string
		known bool
		ok    bool
	}{
		{`"0x1"`, true, true},
		{`"0x0"`, true, false},
		{`"1"`, true, true},
		{`"success"`, true, true},
		{`true`, true, true},
		{`false`, true, false},
		{`1`, true, true},
		{`0`, true, false},
		{`null`, false, false},
		{``, false, false},
	}
	for _, tc := range cases {
		known, ok := parseStatus(json.RawMessage(tc.raw))
		if known != tc.known || ok != tc.ok {
			t.Errorf("parseStatus(%q) = (%v, %v), want (%v, %v)", tc.raw, known, ok, tc.known, tc.ok)
		}
	}
}

func TestReceipt_Succeeded_NoStatusWithHash(t *testing.T) {
	r := &Receipt{TxHash: common.HexToHash("0xbb")}
	if !r.Succeeded() {
		t.Error("receipt without status but with final hash should count as success")
	}
	var empty Receipt
	if empty.Succeeded() {
		t.Error("receipt without status and without hash should not count as success")
	}
}

func TestHTTPClient_Retry_RateLimited(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	id, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID after retry: %v", err)
	}
	if id.Int64() != 1 {
		t.Errorf("expected chain id 1, got %s", id)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (1 rate-limited + 1 retry), got %d", calls)
	}
}
