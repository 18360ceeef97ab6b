package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	aggstub "multisig-trader/internal/aggregator/stub"
	"multisig-trader/internal/allowance"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
	evmstub "multisig-trader/internal/evm/stub"
	"multisig-trader/internal/wallet"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	walletAddr = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	usdcAddr   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	fooAddr    = common.HexToAddress("0x00000000000000000000000000000000000000F0")
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(common.Address, domain.NetworkKey) { c.calls++ }

func testTrade() *domain.Trade {
	return &domain.Trade{
		TradeID:       "t1",
		SignalID:      "sig-1",
		WalletAddress: walletAddr,
		NetworkKey:    "arbitrum",
		Side:          domain.SideBuy,
		SellBinding: domain.TokenBinding{
			Symbol: "USDC", NetworkKey: "arbitrum", ContractAddress: usdcAddr, Decimals: 6,
		},
		BuyBinding: domain.TokenBinding{
			Symbol: "FOO", NetworkKey: "arbitrum", ContractAddress: fooAddr, Decimals: 18,
		},
		State: domain.TradeEntering,
	}
}

// transferLog builds an ERC-20 Transfer(from, to, value) log.
func transferLog(token, from, to common.Address, value *big.Int) evm.Log {
	return evm.Log{
		Address: token,
		Topics: []common.Hash{
			evm.ERC20TransferTopic,
			common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32)),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func fixture(t *testing.T) (*Executor, *evmstub.RPCProvider, *aggstub.RouteProvider, *countingInvalidator) {
	t.Helper()

	rpc := evmstub.NewRPCProvider()
	// Every allowance read returns max so the allowance leg is quiet.
	rpc.CallFn = func(to common.Address, data []byte) ([]byte, error) {
		return common.LeftPadBytes(evm.MaxUint256.Bytes(), 32), nil
	}

	providers := evm.NewProviders()
	providers.Register("arbitrum", rpc)
	safes := wallet.NewFactory(providers, testSignerKey)
	routes := aggstub.NewRouteProvider()
	inv := &countingInvalidator{}

	allowances := allowance.NewManager(allowance.Options{
		Providers:   providers,
		Safes:       safes,
		SettleDelay: time.Millisecond,
		ReceiptWait: time.Second,
	})

	exec := New(Options{
		Providers:   providers,
		Safes:       safes,
		Routes:      routes,
		Allowances:  allowances,
		Invalidator: inv,
		ReceiptWait: time.Second,
	})
	return exec, rpc, routes, inv
}

func TestExecute_EnterFillFromReceipt(t *testing.T) {
	exec, rpc, routes, inv := fixture(t)

	filled := big.NewInt(200_000_000_000_000_000) // 0.2 FOO at 18 decimals
	var swapHash common.Hash
	swapHash[0] = 1 // first broadcast in this fixture
	rpc.Receipts[swapHash] = evm.SuccessReceipt(swapHash).WithLogs([]evm.Log{
		transferLog(fooAddr, routes.Router, walletAddr, filled),
	})

	trade := testTrade()
	result, err := exec.Execute(context.Background(), trade, domain.ExecutionRequest{
		TradeID:   "t1",
		Action:    domain.ActionEnter,
		AmountRaw: big.NewInt(200_000_000),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.FilledRaw.Cmp(filled) != 0 {
		t.Errorf("expected fill %s from receipt transfers, got %s", filled, result.FilledRaw)
	}
	if routes.QuoteCalls != 1 {
		t.Errorf("expected 1 quote, got %d", routes.QuoteCalls)
	}
	if inv.calls != 1 {
		t.Errorf("expected wallet-state invalidation after execution, got %d", inv.calls)
	}
}

func TestExecute_ExitSwapsBindings(t *testing.T) {
	exec, rpc, routes, _ := fixture(t)

	received := big.NewInt(210_000_000) // USDC received on exit
	var swapHash common.Hash
	swapHash[0] = 1
	rpc.Receipts[swapHash] = evm.SuccessReceipt(swapHash).WithLogs([]evm.Log{
		transferLog(usdcAddr, routes.Router, walletAddr, received),
	})

	trade := testTrade()
	trade.State = domain.TradeEntered
	result, err := exec.Execute(context.Background(), trade, domain.ExecutionRequest{
		TradeID:   "t1",
		Action:    domain.ActionExit,
		AmountRaw: big.NewInt(200_000_000_000_000_000),
		ExitKind:  domain.ExitTP1,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The exit buys back the base stable; the fill is the USDC leg.
	if result.FilledRaw.Cmp(received) != 0 {
		t.Errorf("expected exit fill %s, got %s", received, result.FilledRaw)
	}
}

func TestExecute_RevertedSwap(t *testing.T) {
	exec, rpc, _, _ := fixture(t)
	rpc.NextReceipt = evm.FailedReceipt(common.HexToHash("0xbb"))

	_, err := exec.Execute(context.Background(), testTrade(), domain.ExecutionRequest{
		TradeID:   "t1",
		Action:    domain.ActionEnter,
		AmountRaw: big.NewInt(200_000_000),
	})
	if errs.CodeOf(err) != errs.SwapExecutionFailed {
		t.Errorf("expected SWAP_EXECUTION_FAILED, got %v", err)
	}
}

func TestExecute_ZeroAmountRejected(t *testing.T) {
	exec, _, _, _ := fixture(t)

	_, err := exec.Execute(context.Background(), testTrade(), domain.ExecutionRequest{
		TradeID:   "t1",
		Action:    domain.ActionEnter,
		AmountRaw: big.NewInt(0),
	})
	if err == nil {
		t.Fatal("zero amount must be rejected before quoting")
	}
}

func TestExtractReceivedAmount_IgnoresOtherTokensAndRecipients(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000000000E1")
	receipt := evm.SuccessReceipt(common.HexToHash("0x01")).WithLogs([]evm.Log{
		transferLog(fooAddr, other, walletAddr, big.NewInt(100)), // counts
		transferLog(fooAddr, other, other, big.NewInt(50)),       // wrong recipient
		transferLog(usdcAddr, other, walletAddr, big.NewInt(70)), // wrong token
		transferLog(fooAddr, other, walletAddr, big.NewInt(25)),  // counts
	})

	got := ExtractReceivedAmount(receipt, fooAddr, walletAddr)
	if got.Cmp(big.NewInt(125)) != 0 {
		t.Errorf("expected 125, got %s", got)
	}
}
