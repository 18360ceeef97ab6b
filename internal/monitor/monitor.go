// Package monitor watches entered trades against the price feed and
// emits exit signals when take-profit, stop-loss, trailing-stop or
// deadline conditions fire. The monitor never executes trades.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multisig-trader/internal/bus"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/pricing"
)

// DefaultTickPeriod is the polling cadence.
const DefaultTickPeriod = 30 * time.Second

// State is the per-trade monitor state.
type State string

const (
	StateArmed  State = "armed"
	StateTP1Hit State = "tp1_hit"
	StateTP2Hit State = "tp2_hit"
)

// ExitSignal is one emission toward the scheduler.
type ExitSignal struct {
	TradeID string
	Kind    domain.ExitKind
	Price   decimal.Decimal
}

// Attach parameters for one trade.
type AttachParams struct {
	TradeID         string
	Symbol          string
	Side            domain.Side
	EntryPrice      decimal.Decimal
	TP1             decimal.Decimal
	TP2             decimal.Decimal
	StopLoss        decimal.Decimal
	Deadline        time.Time
	TrailingEnabled bool
	// TrailingRetracementPct is the drop from the trailing extremum
	// that triggers the stop, in percent.
	TrailingRetracementPct decimal.Decimal
}

// entry is the monitor's per-trade record.
type entry struct {
	AttachParams
	state State
	// trail is the extremum observed while in tp2_hit: the high for
	// buys, the low for sells.
	trail decimal.Decimal
}

// Monitor drives all per-trade state machines off one shared ticker.
type Monitor struct {
	feed      pricing.PriceFeed
	tick      time.Duration
	publisher bus.Publisher
	log       *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*entry

	out chan ExitSignal
}

// Options configures a Monitor.
type Options struct {
	Feed       pricing.PriceFeed
	TickPeriod time.Duration
	Publisher  bus.Publisher
	Logger     *zap.SugaredLogger
	// QueueSize bounds the emission channel; sends block once full so
	// the scheduler back-pressures the monitor rather than losing
	// events.
	QueueSize int
}

// New creates a Monitor.
func New(opts Options) *Monitor {
	tick := opts.TickPeriod
	if tick == 0 {
		tick = DefaultTickPeriod
	}
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = 256
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = bus.NopPublisher{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Monitor{
		feed:      opts.Feed,
		tick:      tick,
		publisher: publisher,
		log:       log,
		entries:   make(map[string]*entry),
		out:       make(chan ExitSignal, queueSize),
	}
}

// Emissions is the back-pressured channel toward the scheduler.
func (m *Monitor) Emissions() <-chan ExitSignal {
	return m.out
}

// Attach starts monitoring a trade.
func (m *Monitor) Attach(params AttachParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[params.TradeID] = &entry{AttachParams: params, state: StateArmed}
	m.log.Infow("monitor attached",
		"trade", params.TradeID, "symbol", params.Symbol,
		"tp1", params.TP1, "tp2", params.TP2, "sl", params.StopLoss)
}

// Detach stops monitoring a trade. Idempotent.
func (m *Monitor) Detach(tradeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, tradeID)
}

// ActiveCount reports attached trades.
func (m *Monitor) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// TrailingExtremum exposes the trailing high/low for a trade, when in
// the trailing state.
func (m *Monitor) TrailingExtremum(tradeID string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[tradeID]
	if !ok || e.state != StateTP2Hit {
		return decimal.Decimal{}, false
	}
	return e.trail, true
}

// Run ticks until the context ends.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.TickOnce(ctx, time.Now())
		}
	}
}

// TickOnce evaluates every attached trade against one batched price
// pass. Exposed for deterministic tests.
func (m *Monitor) TickOnce(ctx context.Context, now time.Time) {
	m.mu.Lock()
	symbolSet := make(map[string]bool)
	for _, e := range m.entries {
		symbolSet[e.Symbol] = true
	}
	m.mu.Unlock()

	if len(symbolSet) == 0 {
		return
	}

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}

	prices, err := m.feed.GetPrices(ctx, symbols)
	if err != nil {
		// Skip this tick entirely; no state changes on feed failure.
		m.log.Warnw("price fetch failed, skipping tick", "error", err)
		observability.RecordMonitorTickSkip()
		return
	}

	for symbol, point := range prices {
		m.publisher.Publish(bus.TopicMonitorTick, map[string]interface{}{
			"symbol": symbol,
			"price":  point.PriceUSD.String(),
			"at":     point.At.UnixMilli(),
		})
	}

	type emission struct {
		sig ExitSignal
	}
	var emissions []emission

	m.mu.Lock()
	for id, e := range m.entries {
		point, ok := prices[e.Symbol]
		if !ok {
			continue
		}
		kind, fired := e.evaluate(point.PriceUSD, now)
		if !fired {
			continue
		}
		emissions = append(emissions, emission{ExitSignal{TradeID: id, Kind: kind, Price: point.PriceUSD}})
		if terminalKind(kind, e.TrailingEnabled) {
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, em := range emissions {
		m.publisher.Publish(bus.TopicMonitorEmit, map[string]interface{}{
			"tradeId": em.sig.TradeID,
			"kind":    string(em.sig.Kind),
			"price":   em.sig.Price.String(),
		})
		select {
		case m.out <- em.sig:
		case <-ctx.Done():
			return
		}
	}
}

// terminalKind reports whether an emission ends monitoring. TP2 is
// terminal only when trailing is disabled; the remainder exits in
// full.
func terminalKind(kind domain.ExitKind, trailingEnabled bool) bool {
	switch kind {
	case domain.ExitDeadline, domain.ExitStopLoss, domain.ExitTrailingStop:
		return true
	case domain.ExitTP2:
		return !trailingEnabled
	}
	return false
}

// evaluate advances the entry against one price observation and
// returns at most one emission. Tie-break precedence within a tick:
// DEADLINE > STOP_LOSS > TRAILING_STOP > TP2 > TP1.
func (e *entry) evaluate(price decimal.Decimal, now time.Time) (domain.ExitKind, bool) {
	buy := e.Side == domain.SideBuy

	// Comparisons flip for sells.
	breachedStop := func() bool {
		if buy {
			return price.LessThanOrEqual(e.StopLoss)
		}
		return price.GreaterThanOrEqual(e.StopLoss)
	}
	reached := func(level decimal.Decimal) bool {
		if buy {
			return price.GreaterThanOrEqual(level)
		}
		return price.LessThanOrEqual(level)
	}

	if !e.Deadline.IsZero() && !now.Before(e.Deadline) {
		return domain.ExitDeadline, true
	}
	if breachedStop() {
		return domain.ExitStopLoss, true
	}

	if e.state == StateTP2Hit && e.TrailingEnabled {
		// Track the extremum first, then test the retracement.
		if buy {
			if price.GreaterThan(e.trail) {
				e.trail = price
			}
			floor := e.trail.Mul(decimal.NewFromInt(100).Sub(e.TrailingRetracementPct)).Div(decimal.NewFromInt(100))
			if price.LessThanOrEqual(floor) {
				return domain.ExitTrailingStop, true
			}
		} else {
			if price.LessThan(e.trail) {
				e.trail = price
			}
			ceiling := e.trail.Mul(decimal.NewFromInt(100).Add(e.TrailingRetracementPct)).Div(decimal.NewFromInt(100))
			if price.GreaterThanOrEqual(ceiling) {
				return domain.ExitTrailingStop, true
			}
		}
	}

	if e.state == StateTP1Hit && reached(e.TP2) {
		e.state = StateTP2Hit
		if e.TrailingEnabled {
			e.trail = price
		}
		return domain.ExitTP2, true
	}

	if e.state == StateArmed && reached(e.TP1) {
		e.state = StateTP1Hit
		return domain.ExitTP1, true
	}

	return "", false
}
