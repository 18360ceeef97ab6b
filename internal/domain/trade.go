package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeState is the lifecycle state of a Trade.
type TradeState string

const (
	TradePending         TradeState = "pending"
	TradeEntering        TradeState = "entering"
	TradeEntered         TradeState = "entered"
	TradePartiallyExited TradeState = "partially_exited"
	TradeExited          TradeState = "exited"
	TradeStoppedOut      TradeState = "stopped_out"
	TradeExpired         TradeState = "expired"
	TradeFailed          TradeState = "failed"
)

// Terminal reports whether the state is absorbing.
func (s TradeState) Terminal() bool {
	switch s {
	case TradeExited, TradeStoppedOut, TradeExpired, TradeFailed:
		return true
	}
	return false
}

// validTransitions is the allowed state machine. Terminal states have
// no outgoing edges.
var validTransitions = map[TradeState][]TradeState{
	TradePending:         {TradeEntering, TradeFailed},
	TradeEntering:        {TradeEntered, TradeFailed},
	TradeEntered:         {TradePartiallyExited, TradeExited, TradeStoppedOut, TradeExpired, TradeFailed},
	TradePartiallyExited: {TradePartiallyExited, TradeExited, TradeStoppedOut, TradeExpired, TradeFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to TradeState) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ExitKind labels why a position (fully or partially) exits.
type ExitKind string

const (
	ExitTP1          ExitKind = "TP1"
	ExitTP2          ExitKind = "TP2"
	ExitStopLoss     ExitKind = "STOP_LOSS"
	ExitTrailingStop ExitKind = "TRAILING_STOP"
	ExitDeadline     ExitKind = "DEADLINE"
	ExitManual       ExitKind = "MANUAL"
)

// exitUrgency orders exit kinds, most urgent first. Used for the
// monitor's within-tick tie-break.
var exitUrgency = map[ExitKind]int{
	ExitDeadline:     0,
	ExitStopLoss:     1,
	ExitTrailingStop: 2,
	ExitTP2:          3,
	ExitTP1:          4,
	ExitManual:       5,
}

// Urgency returns the tie-break rank of the kind (lower fires first).
func (k ExitKind) Urgency() int {
	if u, ok := exitUrgency[k]; ok {
		return u
	}
	return len(exitUrgency)
}

// ExitEvent records one (partial or full) exit of a trade.
type ExitEvent struct {
	Kind                 ExitKind
	Price                decimal.Decimal
	AmountRaw            *big.Int
	PercentageOfPosition int
	TxHash               common.Hash
	At                   time.Time
	PnLBase              decimal.Decimal
}

// Trade is the central mutable record of the pipeline. All fields
// except the mutable block are fixed at creation. Mutation happens only
// behind the orchestrator's per-trade lease.
type Trade struct {
	TradeID       string
	SignalID      string
	CallerID      string
	WalletAddress common.Address
	NetworkKey    NetworkKey
	SellBinding   TokenBinding
	BuyBinding    TokenBinding
	Side          Side
	TP1           decimal.Decimal
	TP2           decimal.Decimal
	StopLoss      decimal.Decimal
	Deadline      time.Time

	EntryPriceExpected decimal.Decimal

	// Mutable.
	State              TradeState
	EntryTxHash        common.Hash
	EntryFilledRaw     *big.Int
	EntryPriceObserved decimal.Decimal
	TrailingHigh       decimal.Decimal
	ExitEvents         []ExitEvent
	FailureCode        string
	UpdatedAt          time.Time
}

// ExitedPercent sums PercentageOfPosition over recorded exits.
func (t *Trade) ExitedPercent() int {
	total := 0
	for _, e := range t.ExitEvents {
		total += e.PercentageOfPosition
	}
	return total
}

// RemainingRaw is the entry fill minus all exited amounts. Returns zero
// when the trade never filled.
func (t *Trade) RemainingRaw() *big.Int {
	if t.EntryFilledRaw == nil {
		return new(big.Int)
	}
	rem := new(big.Int).Set(t.EntryFilledRaw)
	for _, e := range t.ExitEvents {
		if e.AmountRaw != nil {
			rem.Sub(rem, e.AmountRaw)
		}
	}
	if rem.Sign() < 0 {
		rem.SetInt64(0)
	}
	return rem
}

// Clone returns a deep copy safe to hand outside the lease.
func (t *Trade) Clone() *Trade {
	c := *t
	if t.EntryFilledRaw != nil {
		c.EntryFilledRaw = new(big.Int).Set(t.EntryFilledRaw)
	}
	c.ExitEvents = make([]ExitEvent, len(t.ExitEvents))
	copy(c.ExitEvents, t.ExitEvents)
	for i := range c.ExitEvents {
		if t.ExitEvents[i].AmountRaw != nil {
			c.ExitEvents[i].AmountRaw = new(big.Int).Set(t.ExitEvents[i].AmountRaw)
		}
	}
	return &c
}
