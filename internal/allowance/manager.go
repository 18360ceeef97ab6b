// Package allowance ensures the wallet holds sufficient ERC-20
// allowances toward the permit contract and the aggregator spender
// before a swap executes.
package allowance

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/wallet"
)

// DefaultSettleDelay tolerates RPC state propagation between a mined
// approval and the confirming re-read.
const DefaultSettleDelay = 2 * time.Second

// Manager checks and raises allowances through the multi-sig wallet.
// Approvals are set to max uint256: the approval cost amortises across
// every later trade with the same spender, and the spenders are the
// canonical permit contract and a well-known aggregator.
type Manager struct {
	providers   *evm.Providers
	safes       wallet.SafeFactory
	permits     map[domain.NetworkKey]common.Address
	settleDelay time.Duration
	receiptWait time.Duration
	gasBumpPct  int
	log         *zap.SugaredLogger
}

// Options configures a Manager.
type Options struct {
	Providers *evm.Providers
	Safes     wallet.SafeFactory
	// Permits maps each chain to its canonical permit contract; chains
	// without one skip the permit leg.
	Permits     map[domain.NetworkKey]common.Address
	SettleDelay time.Duration
	ReceiptWait time.Duration
	GasBumpPct  int
	Logger      *zap.SugaredLogger
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	settle := opts.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	receiptWait := opts.ReceiptWait
	if receiptWait == 0 {
		receiptWait = 120 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		providers:   opts.Providers,
		safes:       opts.Safes,
		permits:     opts.Permits,
		settleDelay: settle,
		receiptWait: receiptWait,
		gasBumpPct:  opts.GasBumpPct,
		log:         log,
	}
}

// Ensure guarantees that at swap time the wallet has granted at least
// sellAmountRaw to the permit contract (when the chain has one) and to
// the quote's spender. Native sells need no allowance.
func (m *Manager) Ensure(ctx context.Context, walletAddr common.Address, network domain.NetworkKey, sellBinding domain.TokenBinding, sellAmountRaw *big.Int, spender common.Address) error {
	if sellBinding.IsNative {
		return nil
	}

	var spenders []common.Address
	if permit, ok := m.permits[network]; ok && permit != (common.Address{}) {
		spenders = append(spenders, permit)
	}
	if spender != (common.Address{}) && (len(spenders) == 0 || spenders[0] != spender) {
		spenders = append(spenders, spender)
	}

	for _, sp := range spenders {
		if err := m.ensureOne(ctx, walletAddr, network, sellBinding, sellAmountRaw, sp); err != nil {
			return err
		}
	}
	return nil
}

// ensureOne checks one spender and approves max when short.
func (m *Manager) ensureOne(ctx context.Context, walletAddr common.Address, network domain.NetworkKey, sellBinding domain.TokenBinding, sellAmountRaw *big.Int, spender common.Address) error {
	rpc, err := m.providers.Provider(evm.NetworkKey(network))
	if err != nil {
		return err
	}

	current, err := evm.TokenAllowance(ctx, rpc, sellBinding.ContractAddress, walletAddr, spender)
	if err != nil {
		return errs.Wrap(errs.RPCConnectionFailed, err, "read allowance").
			WithContext(errs.Context{Service: "allowance", WalletAddress: walletAddr.Hex(), NetworkKey: string(network)})
	}
	if current.Cmp(sellAmountRaw) >= 0 {
		return nil
	}

	m.log.Infow("raising allowance to max",
		"wallet", walletAddr.Hex(), "network", network,
		"token", sellBinding.Symbol, "spender", spender.Hex(),
		"current", current.String())

	safe, err := m.safes.Safe(ctx, network, walletAddr)
	if err != nil {
		return err
	}

	unsigned, err := safe.NewTx([]wallet.Call{{
		To:   sellBinding.ContractAddress,
		Data: evm.ApproveData(spender, evm.MaxUint256),
	}})
	if err != nil {
		return err
	}

	gas, err := wallet.SuggestGas(ctx, rpc, m.gasBumpPct, nil)
	if err != nil {
		return errs.Wrap(errs.RPCConnectionFailed, err, "price approval gas")
	}

	signed, err := safe.Sign(ctx, unsigned, gas)
	if err != nil {
		return errs.Wrap(errs.SwapExecutionFailed, err, "sign approval")
	}

	pending, err := safe.Execute(ctx, signed)
	if err != nil {
		return errs.Wrap(errs.SwapExecutionFailed, err, "broadcast approval")
	}
	observability.RecordApprovalSubmitted()

	receipt, err := pending.Wait(ctx, m.receiptWait)
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return errs.New(errs.SwapExecutionFailed, "approval transaction %s reverted", pending.TxHash.Hex()).
			WithContext(errs.Context{Service: "allowance", WalletAddress: walletAddr.Hex(), NetworkKey: string(network)})
	}

	// Let RPC state catch up before the confirming re-read.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.settleDelay):
	}

	confirmed, err := evm.TokenAllowance(ctx, rpc, sellBinding.ContractAddress, walletAddr, spender)
	if err != nil {
		return errs.Wrap(errs.RPCConnectionFailed, err, "re-read allowance")
	}
	if confirmed.Cmp(sellAmountRaw) < 0 {
		return errs.New(errs.SwapExecutionFailed, "allowance to %s still %s after approval", spender.Hex(), confirmed.String()).
			WithContext(errs.Context{Service: "allowance", WalletAddress: walletAddr.Hex(), NetworkKey: string(network)})
	}
	return nil
}
