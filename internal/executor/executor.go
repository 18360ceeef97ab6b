// Package executor carries trades through the swap machinery: quote,
// allowances, multi-sig transaction, confirmation.
package executor

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"multisig-trader/internal/aggregator"
	"multisig-trader/internal/allowance"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/wallet"
)

// DefaultReceiptWait bounds the confirmation wait per transaction.
const DefaultReceiptWait = 120 * time.Second

// Result is a completed execution: the mined hash and the observed
// fill in buy-side units.
type Result struct {
	TxHash    common.Hash
	FilledRaw *big.Int
}

// Invalidator drops cached wallet state after an executor-observed
// change. Satisfied by the wallet validator.
type Invalidator interface {
	Invalidate(wallet common.Address, network domain.NetworkKey)
}

// Executor is stateless beyond its collaborators; per-trade
// serialisation is the scheduler's lease, cross-trade parallelism is
// the scheduler's fan-out.
type Executor struct {
	providers   *evm.Providers
	safes       wallet.SafeFactory
	routes      aggregator.RouteProvider
	allowances  *allowance.Manager
	invalidator Invalidator
	slippageBps int
	gasBumpPct  int
	receiptWait time.Duration
	log         *zap.SugaredLogger
}

// Options configures an Executor.
type Options struct {
	Providers   *evm.Providers
	Safes       wallet.SafeFactory
	Routes      aggregator.RouteProvider
	Allowances  *allowance.Manager
	Invalidator Invalidator
	SlippageBps int
	GasBumpPct  int
	ReceiptWait time.Duration
	Logger      *zap.SugaredLogger
}

// New creates an Executor.
func New(opts Options) *Executor {
	receiptWait := opts.ReceiptWait
	if receiptWait == 0 {
		receiptWait = DefaultReceiptWait
	}
	slippage := opts.SlippageBps
	if slippage == 0 {
		slippage = aggregator.DefaultSlippageBps
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		providers:   opts.Providers,
		safes:       opts.Safes,
		routes:      opts.Routes,
		allowances:  opts.Allowances,
		invalidator: opts.Invalidator,
		slippageBps: slippage,
		gasBumpPct:  opts.GasBumpPct,
		receiptWait: receiptWait,
		log:         log,
	}
}

// Execute runs one ExecutionRequest for the trade. The caller holds
// the trade's lease; this function never mutates the trade.
func (e *Executor) Execute(ctx context.Context, trade *domain.Trade, req domain.ExecutionRequest) (*Result, error) {
	sell := trade.SellBinding
	buy := trade.BuyBinding
	amount := req.AmountRaw
	if req.Action == domain.ActionExit {
		// Exit mirrors entry with the bindings swapped.
		sell, buy = buy, sell
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errs.New(errs.SwapExecutionFailed, "non-positive execution amount").
			WithContext(errs.Context{Service: "executor", TradeID: trade.TradeID})
	}

	ectx := errs.Context{
		Service:       "executor",
		Operation:     string(req.Action),
		TradeID:       trade.TradeID,
		SignalID:      trade.SignalID,
		WalletAddress: trade.WalletAddress.Hex(),
		NetworkKey:    string(trade.NetworkKey),
		Symbol:        trade.BuyBinding.Symbol,
	}

	quote, err := e.routes.Quote(ctx, aggregator.QuoteRequest{
		NetworkKey:    trade.NetworkKey,
		WalletAddress: trade.WalletAddress,
		SellBinding:   sell,
		BuyBinding:    buy,
		SellAmountRaw: amount,
		SlippageBps:   e.slippageBps,
	})
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}

	if err := e.allowances.Ensure(ctx, trade.WalletAddress, trade.NetworkKey, sell, amount, quote.Spender); err != nil {
		return nil, wrapWithContext(err, ectx)
	}

	safe, err := e.safes.Safe(ctx, trade.NetworkKey, trade.WalletAddress)
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}

	unsigned, err := safe.NewTx([]wallet.Call{{To: quote.To, Value: quote.Value, Data: quote.Data}})
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}
	unsigned.GasHint = quote.GasHint

	rpc, err := e.providers.Provider(evm.NetworkKey(trade.NetworkKey))
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}
	gas, err := wallet.SuggestGas(ctx, rpc, e.gasBumpPct, nil)
	if err != nil {
		return nil, wrapWithContext(errs.Wrap(errs.RPCConnectionFailed, err, "price swap gas"), ectx)
	}

	signed, err := safe.Sign(ctx, unsigned, gas)
	if err != nil {
		return nil, wrapWithContext(errs.Wrap(errs.SwapExecutionFailed, err, "sign swap"), ectx)
	}

	pending, err := safe.Execute(ctx, signed)
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}
	observability.RecordSwapBroadcast(string(req.Action))

	e.log.Infow("swap broadcast",
		"trade", trade.TradeID, "action", req.Action,
		"tx", pending.TxHash.Hex(), "network", trade.NetworkKey)

	waitStart := time.Now()
	receipt, err := pending.Wait(ctx, e.receiptWait)
	observability.RecordReceiptWait(time.Since(waitStart).Seconds())
	if err != nil {
		return nil, wrapWithContext(err, ectx)
	}
	if !receipt.Succeeded() {
		return nil, errs.New(errs.SwapExecutionFailed, "swap transaction %s reverted", pending.TxHash.Hex()).
			WithContext(ectx)
	}

	// Wallet state changed on chain; cached validations are stale.
	if e.invalidator != nil {
		e.invalidator.Invalidate(trade.WalletAddress, trade.NetworkKey)
	}

	filled := e.estimateFill(receipt, buy, trade.WalletAddress, quote)

	return &Result{TxHash: pending.TxHash, FilledRaw: filled}, nil
}

// estimateFill derives the fill from the receipt's transfer events,
// falling back to the quote's hint for native buys that emit no
// ERC-20 transfers.
func (e *Executor) estimateFill(receipt *evm.Receipt, buy domain.TokenBinding, walletAddr common.Address, quote *domain.Quote) *big.Int {
	if !buy.IsNative {
		if filled := ExtractReceivedAmount(receipt, buy.ContractAddress, walletAddr); filled.Sign() > 0 {
			return filled
		}
	}
	if quote.BuyAmountHintRaw != nil {
		return new(big.Int).Set(quote.BuyAmountHintRaw)
	}
	return new(big.Int)
}

// wrapWithContext attaches the execution context to taxonomy errors
// without disturbing their code.
func wrapWithContext(err error, ctx errs.Context) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.WithContext(ctx)
	}
	return errs.Wrap(errs.UnknownError, err, "execution failed").WithContext(ctx)
}
