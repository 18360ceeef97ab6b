package domain

import (
	"math/big"
	"testing"
)

func TestTradeStateMachine(t *testing.T) {
	legal := []struct{ from, to TradeState }{
		{TradePending, TradeEntering},
		{TradePending, TradeFailed},
		{TradeEntering, TradeEntered},
		{TradeEntering, TradeFailed},
		{TradeEntered, TradePartiallyExited},
		{TradeEntered, TradeExited},
		{TradeEntered, TradeStoppedOut},
		{TradeEntered, TradeExpired},
		{TradePartiallyExited, TradeExited},
		{TradePartiallyExited, TradePartiallyExited},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to TradeState }{
		{TradePending, TradeEntered}, // cannot skip entering
		{TradePending, TradeExited},
		{TradeExited, TradeEntered}, // terminal is absorbing
		{TradeFailed, TradePending},
		{TradeStoppedOut, TradeExited},
		{TradeExpired, TradePartiallyExited},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []TradeState{TradeExited, TradeStoppedOut, TradeExpired, TradeFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TradeState{TradePending, TradeEntering, TradeEntered, TradePartiallyExited} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestExitUrgencyOrdering(t *testing.T) {
	order := []ExitKind{ExitDeadline, ExitStopLoss, ExitTrailingStop, ExitTP2, ExitTP1}
	for i := 1; i < len(order); i++ {
		if order[i-1].Urgency() >= order[i].Urgency() {
			t.Errorf("%s should be more urgent than %s", order[i-1], order[i])
		}
	}
}

func TestTradeExitAccounting(t *testing.T) {
	trade := &Trade{
		TradeID:        "t1",
		EntryFilledRaw: big.NewInt(1000),
	}
	trade.ExitEvents = append(trade.ExitEvents, ExitEvent{
		Kind: ExitTP1, AmountRaw: big.NewInt(500), PercentageOfPosition: 50,
	})

	if got := trade.ExitedPercent(); got != 50 {
		t.Errorf("expected 50%%, got %d", got)
	}
	if rem := trade.RemainingRaw(); rem.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("expected remaining 500, got %s", rem)
	}

	trade.ExitEvents = append(trade.ExitEvents, ExitEvent{
		Kind: ExitTrailingStop, AmountRaw: big.NewInt(500), PercentageOfPosition: 50,
	})
	if got := trade.ExitedPercent(); got != 100 {
		t.Errorf("expected 100%%, got %d", got)
	}
	if rem := trade.RemainingRaw(); rem.Sign() != 0 {
		t.Errorf("expected zero remaining, got %s", rem)
	}
}

func TestTradeClone_Isolated(t *testing.T) {
	trade := &Trade{
		TradeID:        "t1",
		EntryFilledRaw: big.NewInt(1000),
		ExitEvents:     []ExitEvent{{Kind: ExitTP1, AmountRaw: big.NewInt(100)}},
	}
	clone := trade.Clone()
	clone.EntryFilledRaw.SetInt64(5)
	clone.ExitEvents[0].AmountRaw.SetInt64(7)

	if trade.EntryFilledRaw.Cmp(big.NewInt(1000)) != 0 {
		t.Error("clone shares EntryFilledRaw with original")
	}
	if trade.ExitEvents[0].AmountRaw.Cmp(big.NewInt(100)) != 0 {
		t.Error("clone shares exit amounts with original")
	}
}
