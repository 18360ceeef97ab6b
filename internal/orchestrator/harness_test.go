package orchestrator

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	aggstub "multisig-trader/internal/aggregator/stub"
	"multisig-trader/internal/allowance"
	"multisig-trader/internal/bus"
	dirstub "multisig-trader/internal/directory/stub"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/evm"
	evmstub "multisig-trader/internal/evm/stub"
	"multisig-trader/internal/executor"
	"multisig-trader/internal/monitor"
	pricestub "multisig-trader/internal/pricing/stub"
	"multisig-trader/internal/registry"
	"multisig-trader/internal/sizing"
	"multisig-trader/internal/wallet"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testWallet = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	usdcAddr   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	fooAddr    = common.HexToAddress("0x00000000000000000000000000000000000000F0")
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fixedSource resolves FOO onto scripted networks.
type fixedSource struct {
	networks []domain.NetworkKey
}

func (f *fixedSource) LookupTokenBindings(_ context.Context, symbol string) ([]domain.TokenBinding, error) {
	if symbol != "FOO" {
		return nil, nil
	}
	out := make([]domain.TokenBinding, 0, len(f.networks))
	for _, n := range f.networks {
		out = append(out, domain.TokenBinding{
			Symbol:          "FOO",
			NetworkKey:      n,
			ContractAddress: fooAddr,
			Decimals:        18,
			Source:          domain.SourceRegistry,
		})
	}
	return out, nil
}

// harness is a fully stubbed pipeline fixture.
type harness struct {
	orch   *Orchestrator
	mon    *monitor.Monitor
	rpc    *evmstub.RPCProvider
	dir    *dirstub.Directory
	feed   *pricestub.PriceFeed
	routes *aggstub.RouteProvider
	busCh  <-chan bus.Event
}

// newHarness wires the pipeline against one healthy arbitrum wallet
// with the given USDC balance.
func newHarness(t *testing.T, fooNetworks []domain.NetworkKey, usdcBalanceRaw int64) *harness {
	t.Helper()

	rpc := evmstub.NewRPCProvider()
	routes := aggstub.NewRouteProvider()

	// One CallFn answers every scripted read: wallet config, ERC-20
	// balances, allowances.
	signerAddr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	rpc.CallFn = func(to common.Address, data []byte) ([]byte, error) {
		switch {
		case bytes.HasPrefix(data, evm.OwnersSelector):
			out := common.LeftPadBytes(big.NewInt(32).Bytes(), 32)
			out = append(out, common.LeftPadBytes(big.NewInt(1).Bytes(), 32)...)
			out = append(out, common.LeftPadBytes(signerAddr.Bytes(), 32)...)
			return out, nil
		case bytes.HasPrefix(data, evm.ThresholdSelector):
			return common.LeftPadBytes(big.NewInt(1).Bytes(), 32), nil
		case bytes.HasPrefix(data, evm.BalanceOfSelector) && to == usdcAddr:
			return common.LeftPadBytes(big.NewInt(usdcBalanceRaw).Bytes(), 32), nil
		case bytes.HasPrefix(data, evm.AllowanceSelector):
			return common.LeftPadBytes(evm.MaxUint256.Bytes(), 32), nil
		}
		return common.LeftPadBytes(nil, 32), nil
	}
	rpc.Codes[testWallet] = []byte{0x60, 0x80}
	rpc.Balances[testWallet] = big.NewInt(1_000_000_000_000_000_000)

	providers := evm.NewProviders()
	providers.Register("arbitrum", rpc)

	dir := dirstub.NewDirectory()
	dir.AddDeployment("caller-1", testWallet, "base", true)
	dir.AddDeployment("caller-1", testWallet, "arbitrum", true)

	resolver, err := registry.NewResolver(registry.ResolverOptions{
		Builtin:  registry.NewBuiltinSource(registry.DefaultBuiltinBindings()),
		Registry: &fixedSource{networks: fooNetworks},
	})
	if err != nil {
		t.Fatal(err)
	}

	safes := wallet.NewFactory(providers, testSignerKey)
	validator, err := wallet.NewValidator(providers, safes, nil)
	if err != nil {
		t.Fatal(err)
	}

	sizer := sizing.NewSizer(providers, sizing.DefaultConfig(), nil)

	allowances := allowance.NewManager(allowance.Options{
		Providers:   providers,
		Safes:       safes,
		SettleDelay: time.Millisecond,
		ReceiptWait: time.Second,
	})

	exec := executor.New(executor.Options{
		Providers:   providers,
		Safes:       safes,
		Routes:      routes,
		Allowances:  allowances,
		Invalidator: validator,
		ReceiptWait: time.Second,
	})

	feed := pricestub.NewPriceFeed()
	mon := monitor.New(monitor.Options{Feed: feed, TickPeriod: time.Hour, QueueSize: 16})

	memBus := bus.NewMemoryBus()
	orch := New(Options{
		Directory: dir,
		Resolver:  resolver,
		Validator: validator,
		Sizer:     sizer,
		Routes:    routes,
		Executor:  exec,
		Monitor:   mon,
		Publisher: memBus,
	})

	return &harness{
		orch:   orch,
		mon:    mon,
		rpc:    rpc,
		dir:    dir,
		feed:   feed,
		routes: routes,
		busCh:  memBus.Subscribe(),
	}
}

// scriptSwapReceipt scripts the receipt for the n-th broadcast (1
// based) delivering `amount` of `token` to the wallet.
func (h *harness) scriptSwapReceipt(n int, token common.Address, amount *big.Int) {
	var hash common.Hash
	hash[0] = byte(n)
	h.rpc.Receipts[hash] = evm.SuccessReceipt(hash).WithLogs([]evm.Log{{
		Address: token,
		Topics: []common.Hash{
			evm.ERC20TransferTopic,
			common.BytesToHash(common.LeftPadBytes(h.routes.Router.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(testWallet.Bytes(), 32)),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}})
}

func (h *harness) submitBuy(t *testing.T, signalID string) SubmitResult {
	t.Helper()
	return h.orch.SubmitSignal(context.Background(), &domain.Signal{
		SignalID:      signalID,
		CallerID:      "caller-1",
		WalletAddress: testWallet,
		Side:          domain.SideBuy,
		Symbol:        "FOO",
		EntryPrice:    d("1.00"),
		TP1:           d("1.05"),
		TP2:           d("1.10"),
		StopLoss:      d("0.95"),
		Deadline:      time.Now().Add(time.Hour),
	})
}

// drainOne dispatches exactly one queued request.
func (h *harness) drainOne(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !h.orch.Drain(ctx) {
		t.Fatal("expected a queued request to drain")
	}
}

// pumpEmission moves one monitor emission into the scheduler.
func (h *harness) pumpEmission(t *testing.T) {
	t.Helper()
	select {
	case sig := <-h.mon.Emissions():
		h.orch.HandleEmission(sig)
	case <-time.After(time.Second):
		t.Fatal("expected a monitor emission")
	}
}
