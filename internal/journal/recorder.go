package journal

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"multisig-trader/internal/bus"
)

// Recorder consumes bus events and writes them through the journal
// stores. It batches monitor ticks and flushes them periodically.
type Recorder struct {
	trades TradeStore
	exits  ExitStore
	ticks  TickStore
	log    *zap.SugaredLogger

	tickBatch     []*PriceTick
	tickBatchSize int
	flushInterval time.Duration
}

// RecorderOptions configures a Recorder. Nil stores disable their
// stream.
type RecorderOptions struct {
	Trades        TradeStore
	Exits         ExitStore
	Ticks         TickStore
	TickBatchSize int
	FlushInterval time.Duration
	Logger        *zap.SugaredLogger
}

// NewRecorder creates a Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	batchSize := opts.TickBatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	flush := opts.FlushInterval
	if flush == 0 {
		flush = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{
		trades:        opts.Trades,
		exits:         opts.Exits,
		ticks:         opts.Ticks,
		log:           log,
		tickBatchSize: batchSize,
		flushInterval: flush,
	}
}

// Run consumes events until the context ends. Delivery from the bus is
// best-effort; a store failure is logged and the event dropped.
func (r *Recorder) Run(ctx context.Context, events <-chan bus.Event) error {
	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushTicks(context.Background())
			return ctx.Err()
		case <-flushTicker.C:
			r.flushTicks(ctx)
		case ev, ok := <-events:
			if !ok {
				r.flushTicks(context.Background())
				return nil
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle applies one event. Exposed for deterministic tests.
func (r *Recorder) Handle(ctx context.Context, ev bus.Event) {
	switch ev.Topic {
	case bus.TopicTradeEntered:
		r.handleEntered(ctx, ev)
	case bus.TopicTradeExited:
		r.handleExited(ctx, ev)
	case bus.TopicTradeFailed:
		r.handleFailed(ctx, ev)
	case bus.TopicMonitorTick:
		r.handleTick(ev)
	}
}

func str(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func (r *Recorder) handleEntered(ctx context.Context, ev bus.Event) {
	if r.trades == nil {
		return
	}
	row := &TradeRow{
		TradeID:        str(ev.Payload, "tradeId"),
		SignalID:       str(ev.Payload, "signalId"),
		CallerID:       str(ev.Payload, "callerId"),
		WalletAddress:  str(ev.Payload, "wallet"),
		NetworkKey:     str(ev.Payload, "network"),
		Side:           str(ev.Payload, "side"),
		Symbol:         str(ev.Payload, "symbol"),
		State:          "entered",
		EntryTxHash:    str(ev.Payload, "txHash"),
		EntryFilledRaw: str(ev.Payload, "filledRaw"),
		CreatedAt:      ev.At,
		UpdatedAt:      ev.At,
	}
	if err := r.trades.Insert(ctx, row); err != nil && err != ErrDuplicateKey {
		r.log.Warnw("journal trade insert failed", "trade", row.TradeID, "error", err)
	}
}

func (r *Recorder) handleExited(ctx context.Context, ev bus.Event) {
	tradeID := str(ev.Payload, "tradeId")
	if r.exits != nil {
		pct := 0
		if v, ok := ev.Payload["percentage"].(int); ok {
			pct = v
		}
		row := &ExitRow{
			TradeID:              tradeID,
			Kind:                 str(ev.Payload, "kind"),
			Price:                str(ev.Payload, "price"),
			AmountRaw:            str(ev.Payload, "amountRaw"),
			PercentageOfPosition: pct,
			TxHash:               str(ev.Payload, "txHash"),
			PnLBase:              str(ev.Payload, "pnlBase"),
			At:                   ev.At,
		}
		if err := r.exits.Insert(ctx, row); err != nil {
			r.log.Warnw("journal exit insert failed", "trade", tradeID, "error", err)
		}
	}
	if r.trades != nil {
		if state := str(ev.Payload, "state"); state != "" {
			if err := r.trades.UpdateState(ctx, tradeID, state, "", ev.At); err != nil && err != ErrNotFound {
				r.log.Warnw("journal trade update failed", "trade", tradeID, "error", err)
			}
		}
	}
}

func (r *Recorder) handleFailed(ctx context.Context, ev bus.Event) {
	if r.trades == nil {
		return
	}
	tradeID := str(ev.Payload, "tradeId")
	err := r.trades.UpdateState(ctx, tradeID, "failed", str(ev.Payload, "code"), ev.At)
	if err == ErrNotFound {
		// The trade failed before it entered; record the stub row.
		err = r.trades.Insert(ctx, &TradeRow{
			TradeID:     tradeID,
			State:       "failed",
			FailureCode: str(ev.Payload, "code"),
			CreatedAt:   ev.At,
			UpdatedAt:   ev.At,
		})
	}
	if err != nil && err != ErrDuplicateKey {
		r.log.Warnw("journal trade fail-update failed", "trade", tradeID, "error", err)
	}
}

func (r *Recorder) handleTick(ev bus.Event) {
	if r.ticks == nil {
		return
	}
	price, err := strconv.ParseFloat(str(ev.Payload, "price"), 64)
	if err != nil {
		return
	}
	var at int64
	switch v := ev.Payload["at"].(type) {
	case int64:
		at = v
	case float64:
		at = int64(v)
	}
	r.tickBatch = append(r.tickBatch, &PriceTick{
		Symbol:      str(ev.Payload, "symbol"),
		Price:       price,
		TimestampMs: at,
	})
	if len(r.tickBatch) >= r.tickBatchSize {
		r.flushTicks(context.Background())
	}
}

func (r *Recorder) flushTicks(ctx context.Context) {
	if r.ticks == nil || len(r.tickBatch) == 0 {
		return
	}
	if err := r.ticks.InsertBulk(ctx, r.tickBatch); err != nil {
		r.log.Warnw("journal tick flush failed", "count", len(r.tickBatch), "error", err)
	}
	r.tickBatch = nil
}
