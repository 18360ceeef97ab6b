package journal

import (
	"context"
	"testing"
	"time"

	"multisig-trader/internal/bus"
)

// memory-store doubles living in this package avoid an import cycle
// with journal/memory.
type memTrades struct {
	rows    map[string]*TradeRow
	updates int
}

func (m *memTrades) Insert(_ context.Context, t *TradeRow) error {
	if _, ok := m.rows[t.TradeID]; ok {
		return ErrDuplicateKey
	}
	m.rows[t.TradeID] = t
	return nil
}

func (m *memTrades) UpdateState(_ context.Context, tradeID, state, code string, at time.Time) error {
	t, ok := m.rows[tradeID]
	if !ok {
		return ErrNotFound
	}
	t.State = state
	if code != "" {
		t.FailureCode = code
	}
	t.UpdatedAt = at
	m.updates++
	return nil
}

func (m *memTrades) GetByID(_ context.Context, id string) (*TradeRow, error) {
	t, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *memTrades) GetAll(context.Context) ([]*TradeRow, error) { return nil, nil }

type memExits struct{ rows []*ExitRow }

func (m *memExits) Insert(_ context.Context, e *ExitRow) error {
	m.rows = append(m.rows, e)
	return nil
}
func (m *memExits) GetByTradeID(context.Context, string) ([]*ExitRow, error) { return nil, nil }

type memTicks struct{ rows []*PriceTick }

func (m *memTicks) InsertBulk(_ context.Context, ticks []*PriceTick) error {
	m.rows = append(m.rows, ticks...)
	return nil
}

func event(topic bus.Topic, payload map[string]interface{}) bus.Event {
	return bus.Event{Topic: topic, At: time.Now(), Payload: payload}
}

func TestRecorder_TradeLifecycle(t *testing.T) {
	trades := &memTrades{rows: make(map[string]*TradeRow)}
	exits := &memExits{}
	r := NewRecorder(RecorderOptions{Trades: trades, Exits: exits})
	ctx := context.Background()

	r.Handle(ctx, event(bus.TopicTradeEntered, map[string]interface{}{
		"tradeId": "t1", "signalId": "s1", "callerId": "c1",
		"wallet": "0xAAAA", "network": "arbitrum",
		"side": "buy", "symbol": "FOO",
		"txHash": "0x01", "filledRaw": "1000",
	}))

	row, err := trades.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("expected trade row: %v", err)
	}
	if row.State != "entered" || row.EntryFilledRaw != "1000" {
		t.Errorf("unexpected row: %+v", row)
	}

	r.Handle(ctx, event(bus.TopicTradeExited, map[string]interface{}{
		"tradeId": "t1", "kind": "TP1", "price": "1.06",
		"amountRaw": "1000", "percentage": 100,
		"txHash": "0x02", "pnlBase": "0.06", "state": "exited",
	}))

	if len(exits.rows) != 1 || exits.rows[0].Kind != "TP1" {
		t.Fatalf("expected one TP1 exit, got %+v", exits.rows)
	}
	row, _ = trades.GetByID(ctx, "t1")
	if row.State != "exited" {
		t.Errorf("expected state exited, got %s", row.State)
	}
}

func TestRecorder_FailureBeforeEntry(t *testing.T) {
	trades := &memTrades{rows: make(map[string]*TradeRow)}
	r := NewRecorder(RecorderOptions{Trades: trades})

	r.Handle(context.Background(), event(bus.TopicTradeFailed, map[string]interface{}{
		"tradeId": "t9", "code": "SAFE_NOT_DEPLOYED",
	}))

	row, err := trades.GetByID(context.Background(), "t9")
	if err != nil {
		t.Fatalf("expected stub row for early failure: %v", err)
	}
	if row.State != "failed" || row.FailureCode != "SAFE_NOT_DEPLOYED" {
		t.Errorf("unexpected row: %+v", row)
	}
}

func TestRecorder_TickBatching(t *testing.T) {
	ticks := &memTicks{}
	r := NewRecorder(RecorderOptions{Ticks: ticks, TickBatchSize: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r.Handle(ctx, event(bus.TopicMonitorTick, map[string]interface{}{
			"symbol": "FOO", "price": "1.05", "at": int64(1000 + i),
		}))
	}
	if len(ticks.rows) != 0 {
		t.Fatal("batch should not flush below the threshold")
	}

	r.Handle(ctx, event(bus.TopicMonitorTick, map[string]interface{}{
		"symbol": "FOO", "price": "1.06", "at": int64(1002),
	}))
	if len(ticks.rows) != 3 {
		t.Fatalf("expected batch flush of 3 ticks, got %d", len(ticks.rows))
	}
}
