package allowance

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
	evmstub "multisig-trader/internal/evm/stub"
	"multisig-trader/internal/wallet"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	walletAddr  = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	usdcAddr    = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	spenderAddr = common.HexToAddress("0x0000000000000000000000000000000000000061")
	permitAddr  = common.HexToAddress("0x0000000000000000000000000000000000000071")
)

func usdcBinding() domain.TokenBinding {
	return domain.TokenBinding{
		Symbol:          "USDC",
		NetworkKey:      "arbitrum",
		ContractAddress: usdcAddr,
		Decimals:        6,
	}
}

// allowanceLedger answers allowance reads from a mutable table and
// flips entries to max once an approval lands on chain.
type allowanceLedger struct {
	mu     sync.Mutex
	rpc    *evmstub.RPCProvider
	grants map[common.Address]*big.Int
}

func newFixture(t *testing.T) (*Manager, *evmstub.RPCProvider, *allowanceLedger) {
	t.Helper()

	rpc := evmstub.NewRPCProvider()
	ledger := &allowanceLedger{rpc: rpc, grants: make(map[common.Address]*big.Int)}

	rpc.CallFn = func(to common.Address, data []byte) ([]byte, error) {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		if to == usdcAddr && len(data) >= 68 {
			spender := common.BytesToAddress(data[36:68])
			// Every broadcast in this fixture is an approval; once one
			// was sent, the chain reports max allowance.
			if len(rpc.SentRaw) > 0 {
				return common.LeftPadBytes(evm.MaxUint256.Bytes(), 32), nil
			}
			if g, ok := ledger.grants[spender]; ok {
				return common.LeftPadBytes(g.Bytes(), 32), nil
			}
		}
		return common.LeftPadBytes(nil, 32), nil
	}

	providers := evm.NewProviders()
	providers.Register("arbitrum", rpc)
	safes := wallet.NewFactory(providers, testSignerKey)

	m := NewManager(Options{
		Providers:   providers,
		Safes:       safes,
		Permits:     map[domain.NetworkKey]common.Address{"arbitrum": permitAddr},
		SettleDelay: time.Millisecond,
		ReceiptWait: time.Second,
	})
	return m, rpc, ledger
}

func TestEnsure_NativeSkips(t *testing.T) {
	m, rpc, _ := newFixture(t)

	native := domain.TokenBinding{Symbol: "ETH", IsNative: true, Decimals: 18}
	err := m.Ensure(context.Background(), walletAddr, "arbitrum", native, big.NewInt(1), spenderAddr)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(rpc.SentRaw) != 0 {
		t.Error("native sells must not submit approvals")
	}
}

func TestEnsure_SufficientAllowanceNoApproval(t *testing.T) {
	m, rpc, ledger := newFixture(t)
	ledger.grants[permitAddr] = evm.MaxUint256
	ledger.grants[spenderAddr] = evm.MaxUint256

	err := m.Ensure(context.Background(), walletAddr, "arbitrum", usdcBinding(), big.NewInt(200_000_000), spenderAddr)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(rpc.SentRaw) != 0 {
		t.Errorf("sufficient allowance should not approve, sent %d txs", len(rpc.SentRaw))
	}
}

func TestEnsure_RaisesInsufficientAllowance(t *testing.T) {
	m, rpc, _ := newFixture(t)

	// Zero allowance everywhere: the permit leg approves first; once
	// confirmed the ledger reports max, so the spender leg needs no
	// second approval in this fixture.
	err := m.Ensure(context.Background(), walletAddr, "arbitrum", usdcBinding(), big.NewInt(200_000_000), spenderAddr)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(rpc.SentRaw) == 0 {
		t.Fatal("expected at least one approval broadcast")
	}

	// Second trade within the same state: allowance now reads max, no
	// further approvals.
	before := len(rpc.SentRaw)
	if err := m.Ensure(context.Background(), walletAddr, "arbitrum", usdcBinding(), big.NewInt(200_000_000), spenderAddr); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if len(rpc.SentRaw) != before {
		t.Errorf("second trade should reuse the standing approval, sent %d new txs", len(rpc.SentRaw)-before)
	}
}

func TestEnsure_RevertedApprovalFails(t *testing.T) {
	m, rpc, _ := newFixture(t)
	rpc.NextReceipt = evm.FailedReceipt(common.HexToHash("0x01"))

	err := m.Ensure(context.Background(), walletAddr, "arbitrum", usdcBinding(), big.NewInt(200_000_000), spenderAddr)
	if errs.CodeOf(err) != errs.SwapExecutionFailed {
		t.Errorf("expected SWAP_EXECUTION_FAILED for reverted approval, got %v", err)
	}
}

func TestEnsure_StillShortAfterApproval(t *testing.T) {
	m, rpc, _ := newFixture(t)

	// The chain never reflects the approval.
	rpc.CallFn = func(to common.Address, data []byte) ([]byte, error) {
		return common.LeftPadBytes(nil, 32), nil
	}

	err := m.Ensure(context.Background(), walletAddr, "arbitrum", usdcBinding(), big.NewInt(200_000_000), spenderAddr)
	if errs.CodeOf(err) != errs.SwapExecutionFailed {
		t.Errorf("expected SWAP_EXECUTION_FAILED when re-read stays short, got %v", err)
	}
}
