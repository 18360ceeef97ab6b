package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"multisig-trader/internal/errs"
)

// Side is the direction of a trading signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Signal is an immutable trading instruction submitted by a caller.
// It lives from receipt until terminal classification.
type Signal struct {
	SignalID      string // minted on ingress, stable across retransmissions
	CallerID      string
	WalletAddress common.Address
	Side          Side
	Symbol        string
	EntryPrice    decimal.Decimal
	TP1           decimal.Decimal
	TP2           decimal.Decimal
	StopLoss      decimal.Decimal
	Deadline      time.Time
}

// Validate checks shape and price-level invariants.
// For buy: stopLoss < entryPrice < tp1 <= tp2.
// For sell: tp2 <= tp1 < entryPrice < stopLoss.
func (s *Signal) Validate(now time.Time) error {
	if s.SignalID == "" || s.CallerID == "" || s.Symbol == "" {
		return errs.New(errs.InvalidSignalFormat, "signal id, caller id and symbol are required").
			WithRecommendation("resubmit the signal with all identifying fields set")
	}
	if s.WalletAddress == (common.Address{}) {
		return errs.New(errs.InvalidSignalFormat, "wallet address is required").
			WithRecommendation("set the multi-signature wallet address for the caller")
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return errs.New(errs.InvalidSignalFormat, "side must be buy or sell, got %q", s.Side)
	}
	for _, p := range []decimal.Decimal{s.EntryPrice, s.TP1, s.TP2, s.StopLoss} {
		if !p.IsPositive() {
			return errs.New(errs.InvalidPriceLevels, "price levels must be positive decimals")
		}
	}
	switch s.Side {
	case SideBuy:
		if !(s.StopLoss.LessThan(s.EntryPrice) &&
			s.EntryPrice.LessThan(s.TP1) &&
			s.TP1.LessThanOrEqual(s.TP2)) {
			return errs.New(errs.InvalidPriceLevels,
				"buy requires stopLoss < entry < tp1 <= tp2 (sl=%s entry=%s tp1=%s tp2=%s)",
				s.StopLoss, s.EntryPrice, s.TP1, s.TP2)
		}
	case SideSell:
		if !(s.TP2.LessThanOrEqual(s.TP1) &&
			s.TP1.LessThan(s.EntryPrice) &&
			s.EntryPrice.LessThan(s.StopLoss)) {
			return errs.New(errs.InvalidPriceLevels,
				"sell requires tp2 <= tp1 < entry < stopLoss (sl=%s entry=%s tp1=%s tp2=%s)",
				s.StopLoss, s.EntryPrice, s.TP1, s.TP2)
		}
	}
	if !s.Deadline.After(now) {
		return errs.New(errs.SignalExpired, "deadline %s is not in the future", s.Deadline.Format(time.RFC3339)).
			WithRecommendation("resubmit with a future deadline")
	}
	return nil
}
