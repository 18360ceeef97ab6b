// Package orchestrator is the single authority for trade progression:
// it admits signals through the validation pipeline, schedules entry
// and exit executions under per-trade leases, and consumes monitor
// emissions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multisig-trader/internal/aggregator"
	"multisig-trader/internal/bus"
	"multisig-trader/internal/directory"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/executor"
	"multisig-trader/internal/flow"
	"multisig-trader/internal/monitor"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/registry"
	"multisig-trader/internal/retry"
	"multisig-trader/internal/sizing"
	"multisig-trader/internal/wallet"
)

// Config is the orchestrator's policy surface.
type Config struct {
	BaseSymbol             string
	PositionPercent        int
	FanOut                 int
	TP1ExitPercent         int
	TrailingEnabled        bool
	TrailingRetracementPct decimal.Decimal
	DedupCapacity          int
	ExitRetryBase          time.Duration
	ExitRetryCap           time.Duration
	ExitMaxRetries         int
}

// DefaultConfig returns the shipped policy.
func DefaultConfig() Config {
	return Config{
		BaseSymbol:             "USDC",
		PositionPercent:        sizing.DefaultPercent,
		FanOut:                 8,
		TP1ExitPercent:         100,
		TrailingEnabled:        true,
		TrailingRetracementPct: decimal.NewFromInt(2),
		DedupCapacity:          10_000,
		ExitRetryBase:          time.Second,
		ExitRetryCap:           30 * time.Second,
		ExitMaxRetries:         5,
	}
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Directory directory.Directory
	Resolver  *registry.Resolver
	Validator *wallet.Validator
	Sizer     *sizing.Sizer
	Routes    aggregator.RouteProvider
	Executor  *executor.Executor
	Monitor   *monitor.Monitor
	Publisher bus.Publisher
	Flow      *flow.Tracker
	Logger    *zap.SugaredLogger
	Config    Config
}

// SubmitResult is the reply to SubmitSignal.
type SubmitResult struct {
	SignalID string
	TradeID  string
	Accepted bool
	Code     string
	Message  string
}

// Orchestrator owns the trade map; every mutation runs behind the
// per-trade lease held during dispatch or the admission path.
type Orchestrator struct {
	directory directory.Directory
	resolver  *registry.Resolver
	validator *wallet.Validator
	sizer     *sizing.Sizer
	routes    aggregator.RouteProvider
	executor  *executor.Executor
	monitor   *monitor.Monitor
	publisher bus.Publisher
	flow      *flow.Tracker
	log       *zap.SugaredLogger
	config    Config

	mu     sync.RWMutex
	trades map[string]*domain.Trade

	queue *requestQueue
	dedup *dedupSet

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.BaseSymbol == "" {
		cfg.BaseSymbol = def.BaseSymbol
	}
	if cfg.PositionPercent == 0 {
		cfg.PositionPercent = def.PositionPercent
	}
	if cfg.FanOut == 0 {
		cfg.FanOut = def.FanOut
	}
	if cfg.TP1ExitPercent == 0 {
		cfg.TP1ExitPercent = def.TP1ExitPercent
	}
	if cfg.TrailingRetracementPct.IsZero() {
		cfg.TrailingRetracementPct = def.TrailingRetracementPct
	}
	if cfg.DedupCapacity == 0 {
		cfg.DedupCapacity = def.DedupCapacity
	}
	if cfg.ExitRetryBase == 0 {
		cfg.ExitRetryBase = def.ExitRetryBase
	}
	if cfg.ExitRetryCap == 0 {
		cfg.ExitRetryCap = def.ExitRetryCap
	}
	if cfg.ExitMaxRetries == 0 {
		cfg.ExitMaxRetries = def.ExitMaxRetries
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = bus.NopPublisher{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	fl := opts.Flow
	if fl == nil {
		fl = flow.NewTracker(log)
	}

	return &Orchestrator{
		directory: opts.Directory,
		resolver:  opts.Resolver,
		validator: opts.Validator,
		sizer:     opts.Sizer,
		routes:    opts.Routes,
		executor:  opts.Executor,
		monitor:   opts.Monitor,
		publisher: publisher,
		flow:      fl,
		log:       log,
		config:    cfg,
		trades:    make(map[string]*domain.Trade),
		queue:     newRequestQueue(),
		dedup:     newDedupSet(cfg.DedupCapacity),
	}
}

// Run starts the worker pool and the monitor-emission consumer, and
// blocks until ctx ends. Shutdown drains in-flight executions
// best-effort and leaves still-queued trades failed with
// SYSTEM_SHUTDOWN.
func (o *Orchestrator) Run(ctx context.Context) error {
	for i := 0; i < o.config.FanOut; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}

	o.wg.Add(1)
	go o.consumeEmissions(ctx)

	<-ctx.Done()
	o.queue.Wake()

	dropped := o.queue.Drain()
	for _, req := range dropped {
		o.mutate(req.TradeID, func(t *domain.Trade) {
			if t.State.Terminal() {
				return
			}
			t.State = domain.TradeFailed
			t.FailureCode = string(errs.SystemShutdown)
			t.UpdatedAt = time.Now()
		})
	}

	o.wg.Wait()
	return ctx.Err()
}

// SubmitSignal admits a signal. Idempotent on signalId: re-delivery
// returns the original classification without reprocessing.
func (o *Orchestrator) SubmitSignal(ctx context.Context, sig *domain.Signal) SubmitResult {
	if c, ok := o.dedup.Get(sig.SignalID); ok {
		observability.RecordSignalDeduped()
		return SubmitResult{
			SignalID: c.SignalID,
			TradeID:  c.TradeID,
			Accepted: c.Accepted,
			Code:     c.Code,
			Message:  c.Message,
		}
	}

	o.flow.Start(sig.SignalID, "orchestrator", "submit")
	tradeID, err := o.admit(ctx, sig)
	if err != nil {
		var e *errs.Error
		if !errors.As(err, &e) {
			e = errs.Wrap(errs.UnknownError, err, "signal admission failed")
		}
		e.WithContext(errs.Context{SignalID: sig.SignalID, Symbol: sig.Symbol})

		// Record the failed trade so idempotent re-delivery cannot
		// re-execute the admission pipeline.
		if tradeID == "" {
			tradeID = uuid.NewString()
		}
		o.mu.Lock()
		if _, exists := o.trades[tradeID]; !exists {
			o.trades[tradeID] = &domain.Trade{
				TradeID:            tradeID,
				SignalID:           sig.SignalID,
				CallerID:           sig.CallerID,
				WalletAddress:      sig.WalletAddress,
				Side:               sig.Side,
				TP1:                sig.TP1,
				TP2:                sig.TP2,
				StopLoss:           sig.StopLoss,
				Deadline:           sig.Deadline,
				EntryPriceExpected: sig.EntryPrice,
				State:              domain.TradeFailed,
				FailureCode:        string(e.Code),
				UpdatedAt:          time.Now(),
			}
		}
		o.mu.Unlock()
		observability.RecordTradeFailed(string(e.Code))

		o.flow.Fail(sig.SignalID, "orchestrator", "submit", e)
		observability.RecordSignalRejected(string(e.Code))
		o.publisher.Publish(bus.TopicSignalRejected, map[string]interface{}{
			"signalId": sig.SignalID,
			"code":     string(e.Code),
			"message":  e.Summary(),
		})

		c := Classification{
			SignalID: sig.SignalID,
			TradeID:  tradeID,
			Accepted: false,
			Code:     string(e.Code),
			Message:  e.Summary(),
		}
		o.dedup.Put(c)
		return SubmitResult{SignalID: sig.SignalID, TradeID: tradeID, Code: c.Code, Message: c.Message}
	}

	o.flow.Complete(sig.SignalID, "orchestrator", "submit")
	observability.RecordSignalAccepted()
	o.publisher.Publish(bus.TopicSignalAccepted, map[string]interface{}{
		"signalId": sig.SignalID,
		"tradeId":  tradeID,
	})

	c := Classification{SignalID: sig.SignalID, TradeID: tradeID, Accepted: true}
	o.dedup.Put(c)
	return SubmitResult{SignalID: sig.SignalID, TradeID: tradeID, Accepted: true}
}

// admit runs the validation pipeline and enqueues the entry. Any
// failure after the trade is minted records it failed so idempotent
// re-delivery cannot re-execute.
func (o *Orchestrator) admit(ctx context.Context, sig *domain.Signal) (string, error) {
	now := time.Now()
	if err := sig.Validate(now); err != nil {
		return "", err
	}
	o.flow.Step(sig.SignalID, "orchestrator", "validated")

	record, err := o.directory.GetWallet(ctx, sig.CallerID, sig.WalletAddress)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return "", errs.New(errs.SafeNotDeployed, "caller %s has no wallet directory record", sig.CallerID).
				WithRecommendation("register and deploy a wallet before submitting signals")
		}
		return "", err
	}
	activeNetworks := record.ActiveNetworks(sig.WalletAddress)

	bindings, err := o.resolver.Resolve(ctx, sig.Symbol, activeNetworks)
	if err != nil {
		return "", err
	}
	o.flow.Step(sig.SignalID, "orchestrator", "resolved", "chains", len(bindings))

	var tokenBinding *domain.TokenBinding
	for i := range bindings {
		if activeNetworks[bindings[i].NetworkKey] {
			tokenBinding = &bindings[i]
			break
		}
	}
	if tokenBinding == nil {
		available := make([]string, 0, len(bindings))
		for _, b := range bindings {
			available = append(available, string(b.NetworkKey))
		}
		return "", errs.New(errs.SafeNotDeployed, "%s trades on %v but the caller has no active wallet there", sig.Symbol, available).
			WithRecommendation(fmt.Sprintf("deploy the wallet on one of %v", available)).
			WithContext(errs.Context{Symbol: sig.Symbol, WalletAddress: sig.WalletAddress.Hex()})
	}
	network := tokenBinding.NetworkKey

	if _, err := o.validator.Validate(ctx, record, sig.WalletAddress, network, tokenBinding.IsNative && sig.Side == domain.SideSell); err != nil {
		return "", err
	}
	o.flow.Step(sig.SignalID, "orchestrator", "wallet-validated", "network", network)

	baseBinding, err := o.baseBindingOn(ctx, network, activeNetworks)
	if err != nil {
		return "", err
	}

	// Entry direction: a buy sells the base stable for the token, a
	// sell does the reverse.
	sell, buy := *baseBinding, *tokenBinding
	if sig.Side == domain.SideSell {
		sell, buy = *tokenBinding, *baseBinding
	}

	minRaw, err := o.routes.MinSellAmountRaw(ctx, sell.Symbol, network)
	if err != nil {
		// Advisory only; sizing proceeds on the USD minimum.
		o.log.Warnw("min-amount advisory unavailable", "symbol", sell.Symbol, "error", err)
		minRaw = new(big.Int)
	}

	plan, err := o.sizer.Plan(ctx, sizing.Input{
		WalletAddress: sig.WalletAddress,
		NetworkKey:    network,
		SellBinding:   sell,
		BuyBinding:    buy,
		Percent:       o.config.PositionPercent,
		MinAmountRaw:  minRaw,
	})
	if err != nil {
		return "", err
	}
	o.flow.Step(sig.SignalID, "orchestrator", "sized",
		"amount", domain.FormatRaw(plan.SellAmountRaw, sell.Decimals), "token", sell.Symbol)

	tradeID := uuid.NewString()
	trade := &domain.Trade{
		TradeID:            tradeID,
		SignalID:           sig.SignalID,
		CallerID:           sig.CallerID,
		WalletAddress:      sig.WalletAddress,
		NetworkKey:         network,
		SellBinding:        sell,
		BuyBinding:         buy,
		Side:               sig.Side,
		TP1:                sig.TP1,
		TP2:                sig.TP2,
		StopLoss:           sig.StopLoss,
		Deadline:           sig.Deadline,
		EntryPriceExpected: sig.EntryPrice,
		State:              domain.TradePending,
		UpdatedAt:          now,
	}

	o.mu.Lock()
	o.trades[tradeID] = trade
	active := o.countActiveLocked()
	o.mu.Unlock()
	observability.SetActiveTrades(active)

	o.Enqueue(&domain.ExecutionRequest{
		TradeID:   tradeID,
		Action:    domain.ActionEnter,
		AmountRaw: new(big.Int).Set(plan.SellAmountRaw),
		Reason:    plan.Rationale,
		Priority:  domain.PriorityMedium,
	})

	return tradeID, nil
}

// baseBindingOn resolves the configured base stablecoin on the chosen
// network.
func (o *Orchestrator) baseBindingOn(ctx context.Context, network domain.NetworkKey, activeNetworks map[domain.NetworkKey]bool) (*domain.TokenBinding, error) {
	bases, err := o.resolver.Resolve(ctx, o.config.BaseSymbol, activeNetworks)
	if err != nil {
		return nil, err
	}
	for i := range bases {
		if bases[i].NetworkKey == network {
			return &bases[i], nil
		}
	}
	return nil, errs.New(errs.UnsupportedNetwork, "base token %s is not available on %s", o.config.BaseSymbol, network).
		WithContext(errs.Context{NetworkKey: string(network), Symbol: o.config.BaseSymbol})
}

// Enqueue adds a request to the scheduler queue.
func (o *Orchestrator) Enqueue(req *domain.ExecutionRequest) {
	o.queue.Push(req)
	observability.SetQueueDepth(req.Priority.String(), o.queue.Depth(req.Priority))
}

// Trade returns a copy of the trade for read-only consumers.
func (o *Orchestrator) Trade(tradeID string) (*domain.Trade, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.trades[tradeID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Trades returns copies of every trade.
func (o *Orchestrator) Trades() []*domain.Trade {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*domain.Trade, 0, len(o.trades))
	for _, t := range o.trades {
		out = append(out, t.Clone())
	}
	return out
}

// mutate applies fn to the trade under the map lock.
func (o *Orchestrator) mutate(tradeID string, fn func(*domain.Trade)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.trades[tradeID]; ok {
		fn(t)
	}
}

func (o *Orchestrator) countActiveLocked() int {
	n := 0
	for _, t := range o.trades {
		if !t.State.Terminal() {
			n++
		}
	}
	return n
}

// worker pulls requests and dispatches them until shutdown.
func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		req := o.queue.Pop(ctx)
		if req == nil {
			return
		}
		o.dispatch(ctx, req)
		o.queue.Release(req.TradeID)
	}
}

// Drain processes exactly one queued request synchronously. For tests.
func (o *Orchestrator) Drain(ctx context.Context) bool {
	req := o.queue.Pop(ctx)
	if req == nil {
		return false
	}
	o.dispatch(ctx, req)
	o.queue.Release(req.TradeID)
	return true
}

// dispatch validates the request against the trade's state and runs
// the executor. Invalid transitions are dropped with a warning, never
// executed.
func (o *Orchestrator) dispatch(ctx context.Context, req *domain.ExecutionRequest) {
	trade, ok := o.Trade(req.TradeID)
	if !ok {
		o.log.Warnw("dropping request for unknown trade", "trade", req.TradeID, "action", req.Action)
		observability.RecordRequestDropped()
		return
	}

	switch req.Action {
	case domain.ActionEnter:
		if trade.State != domain.TradePending {
			o.log.Warnw("dropping illegal enter", "trade", req.TradeID, "state", trade.State)
			observability.RecordRequestDropped()
			return
		}
	case domain.ActionExit:
		if trade.State.Terminal() {
			// Exiting a terminal trade is a no-op, not an error.
			return
		}
		if trade.State != domain.TradeEntered && trade.State != domain.TradePartiallyExited {
			o.log.Warnw("dropping illegal exit", "trade", req.TradeID, "state", trade.State)
			observability.RecordRequestDropped()
			return
		}
	default:
		observability.RecordRequestDropped()
		return
	}

	if req.Action == domain.ActionEnter {
		o.mutate(req.TradeID, func(t *domain.Trade) {
			t.State = domain.TradeEntering
			t.UpdatedAt = time.Now()
		})
		trade.State = domain.TradeEntering
	}

	start := time.Now()
	result, err := o.executor.Execute(ctx, trade, *req)
	observability.RecordExecution(string(req.Action), time.Since(start).Seconds())

	if err != nil {
		o.handleExecutionFailure(req, err)
		return
	}

	if req.Action == domain.ActionEnter {
		o.applyEnterResult(trade, result)
	} else {
		o.applyExitResult(trade, req, result)
	}
}

// handleExecutionFailure classifies a failed execution: entries fail
// the trade, exits re-queue with backoff and eventually hand the trade
// back to the monitor.
func (o *Orchestrator) handleExecutionFailure(req *domain.ExecutionRequest, err error) {
	code := errs.CodeOf(err)
	o.log.Warnw("execution failed",
		"trade", req.TradeID, "action", req.Action, "code", code, "error", err)

	if req.Action == domain.ActionEnter {
		o.failTrade(req.TradeID, code)
		return
	}

	if req.Attempt >= o.config.ExitMaxRetries {
		// Give up on this request; re-attach the monitor so the next
		// threshold crossing re-emits.
		o.log.Warnw("exit retries exhausted, re-attaching monitor", "trade", req.TradeID)
		if trade, ok := o.Trade(req.TradeID); ok && !trade.State.Terminal() {
			o.attachMonitor(trade)
		}
		return
	}

	retryReq := *req
	retryReq.Attempt++

	urgent := req.ExitKind == domain.ExitStopLoss || req.ExitKind == domain.ExitDeadline
	if urgent {
		retryReq.Priority = domain.PriorityHigh
	}

	delay := retry.BackoffDelay(req.Attempt, o.config.ExitRetryBase, o.config.ExitRetryCap)
	if urgent && req.Attempt == 0 {
		// First retry of a protective exit goes straight back in.
		delay = 0
	}

	observability.RecordExitRequeue()
	if delay == 0 {
		o.Enqueue(&retryReq)
		return
	}
	time.AfterFunc(delay, func() {
		o.Enqueue(&retryReq)
	})
}

// failTrade marks a trade failed and cancels its scheduled work.
func (o *Orchestrator) failTrade(tradeID string, code errs.Code) {
	o.mutate(tradeID, func(t *domain.Trade) {
		if t.State.Terminal() {
			return
		}
		t.State = domain.TradeFailed
		t.FailureCode = string(code)
		t.UpdatedAt = time.Now()
	})
	o.terminalize(tradeID)
	observability.RecordTradeFailed(string(code))
	o.publisher.Publish(bus.TopicTradeFailed, map[string]interface{}{
		"tradeId": tradeID,
		"code":    string(code),
	})
}

// applyEnterResult records the fill and attaches the monitor.
func (o *Orchestrator) applyEnterResult(trade *domain.Trade, result *executor.Result) {
	o.mutate(trade.TradeID, func(t *domain.Trade) {
		t.State = domain.TradeEntered
		t.EntryTxHash = result.TxHash
		t.EntryFilledRaw = result.FilledRaw
		t.EntryPriceObserved = t.EntryPriceExpected
		t.UpdatedAt = time.Now()
	})

	symbol := trade.BuyBinding.Symbol
	if trade.Side == domain.SideSell {
		symbol = trade.SellBinding.Symbol
	}
	observability.RecordTradeEntered()
	o.publisher.Publish(bus.TopicTradeEntered, map[string]interface{}{
		"tradeId":   trade.TradeID,
		"signalId":  trade.SignalID,
		"callerId":  trade.CallerID,
		"wallet":    trade.WalletAddress.Hex(),
		"side":      string(trade.Side),
		"symbol":    symbol,
		"txHash":    result.TxHash.Hex(),
		"filledRaw": result.FilledRaw.String(),
		"network":   string(trade.NetworkKey),
	})

	entered, _ := o.Trade(trade.TradeID)
	o.attachMonitor(entered)
}

// attachMonitor (re)arms the monitor for an entered trade.
func (o *Orchestrator) attachMonitor(trade *domain.Trade) {
	symbol := trade.BuyBinding.Symbol
	if trade.Side == domain.SideSell {
		symbol = trade.SellBinding.Symbol
	}
	o.monitor.Attach(monitor.AttachParams{
		TradeID:                trade.TradeID,
		Symbol:                 symbol,
		Side:                   trade.Side,
		EntryPrice:             trade.EntryPriceExpected,
		TP1:                    trade.TP1,
		TP2:                    trade.TP2,
		StopLoss:               trade.StopLoss,
		Deadline:               trade.Deadline,
		TrailingEnabled:        o.config.TrailingEnabled,
		TrailingRetracementPct: o.config.TrailingRetracementPct,
	})
	observability.SetMonitoredTrades(o.monitor.ActiveCount())
}

// applyExitResult records the exit event and drives the terminal
// transition when the position is fully closed.
func (o *Orchestrator) applyExitResult(trade *domain.Trade, req *domain.ExecutionRequest, result *executor.Result) {
	kind := req.ExitKind
	if kind == "" {
		kind = domain.ExitManual
	}

	var terminal domain.TradeState
	var pct int
	var pnl decimal.Decimal
	var state domain.TradeState
	o.mutate(trade.TradeID, func(t *domain.Trade) {
		prior := t.ExitedPercent()
		pct = exitPercent(t, req.AmountRaw, prior)
		pnl = exitPnL(t, req.AmountRaw, req.ExitPrice)

		t.ExitEvents = append(t.ExitEvents, domain.ExitEvent{
			Kind:                 kind,
			Price:                req.ExitPrice,
			AmountRaw:            new(big.Int).Set(req.AmountRaw),
			PercentageOfPosition: pct,
			TxHash:               result.TxHash,
			At:                   time.Now(),
			PnLBase:              pnl,
		})
		t.UpdatedAt = time.Now()

		if prior+pct >= 100 {
			switch kind {
			case domain.ExitStopLoss:
				t.State = domain.TradeStoppedOut
			case domain.ExitDeadline:
				t.State = domain.TradeExpired
			default:
				t.State = domain.TradeExited
			}
			terminal = t.State
		} else {
			t.State = domain.TradePartiallyExited
		}
		state = t.State
	})

	observability.RecordTradeExited(string(kind))
	o.publisher.Publish(bus.TopicTradeExited, map[string]interface{}{
		"tradeId":    trade.TradeID,
		"kind":       string(kind),
		"amountRaw":  req.AmountRaw.String(),
		"txHash":     result.TxHash.Hex(),
		"price":      req.ExitPrice.String(),
		"percentage": pct,
		"pnlBase":    pnl.String(),
		"state":      string(state),
	})

	if terminal != "" {
		o.terminalize(trade.TradeID)
	}
}

// exitPercent computes the exit's share of the filled position. The
// final closing exit absorbs rounding so the series sums to exactly
// 100.
func exitPercent(t *domain.Trade, amount *big.Int, priorPct int) int {
	if t.EntryFilledRaw == nil || t.EntryFilledRaw.Sign() == 0 {
		return 100 - priorPct
	}
	remaining := t.RemainingRaw()
	if amount.Cmp(remaining) >= 0 {
		return 100 - priorPct
	}
	pct := new(big.Int).Mul(amount, big.NewInt(100))
	pct.Quo(pct, t.EntryFilledRaw)
	p := int(pct.Int64())
	if p < 1 {
		p = 1
	}
	if priorPct+p > 100 {
		p = 100 - priorPct
	}
	return p
}

// exitPnL estimates realised profit in base units against the expected
// entry price.
func exitPnL(t *domain.Trade, amount *big.Int, exitPrice decimal.Decimal) decimal.Decimal {
	if exitPrice.IsZero() || t.EntryPriceExpected.IsZero() || amount == nil {
		return decimal.Decimal{}
	}
	qty := decimal.NewFromBigInt(amount, -int32(t.BuyBinding.Decimals))
	diff := exitPrice.Sub(t.EntryPriceExpected)
	if t.Side == domain.SideSell {
		diff = t.EntryPriceExpected.Sub(exitPrice)
	}
	return qty.Mul(diff)
}

// terminalize cancels pending work and detaches the monitor for a
// terminal trade.
func (o *Orchestrator) terminalize(tradeID string) {
	o.queue.CancelTrade(tradeID)
	o.monitor.Detach(tradeID)
	observability.SetMonitoredTrades(o.monitor.ActiveCount())

	o.mu.RLock()
	active := o.countActiveLocked()
	o.mu.RUnlock()
	observability.SetActiveTrades(active)
}

// consumeEmissions turns monitor exit signals into exit requests.
func (o *Orchestrator) consumeEmissions(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-o.monitor.Emissions():
			if !ok {
				return
			}
			o.HandleEmission(sig)
		}
	}
}

// HandleEmission enqueues the exit for one monitor emission. Exposed
// for deterministic tests.
func (o *Orchestrator) HandleEmission(sig monitor.ExitSignal) {
	observability.RecordMonitorEmission(string(sig.Kind))

	trade, ok := o.Trade(sig.TradeID)
	if !ok || trade.State.Terminal() {
		o.monitor.Detach(sig.TradeID)
		return
	}

	// TP2 with trailing enabled only transitions the monitor's state;
	// the remaining position rides the trailing stop.
	if sig.Kind == domain.ExitTP2 && o.config.TrailingEnabled {
		return
	}

	remaining := trade.RemainingRaw()
	if remaining.Sign() == 0 {
		return
	}

	amount := remaining
	if sig.Kind == domain.ExitTP1 && o.config.TP1ExitPercent < 100 {
		amount = domain.PercentOfRaw(trade.EntryFilledRaw, int64(o.config.TP1ExitPercent)*100)
		if amount.Cmp(remaining) > 0 {
			amount = remaining
		}
	}

	priority := domain.PriorityMedium
	if sig.Kind == domain.ExitStopLoss || sig.Kind == domain.ExitDeadline {
		priority = domain.PriorityHigh
	}

	o.Enqueue(&domain.ExecutionRequest{
		TradeID:   sig.TradeID,
		Action:    domain.ActionExit,
		AmountRaw: amount,
		Reason:    fmt.Sprintf("monitor %s at %s", sig.Kind, sig.Price),
		Priority:  priority,
		ExitKind:  sig.Kind,
		ExitPrice: sig.Price,
	})
}
