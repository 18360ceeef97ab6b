package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"multisig-trader/internal/errs"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func validBuySignal() *Signal {
	return &Signal{
		SignalID:      "sig-1",
		CallerID:      "caller-1",
		WalletAddress: common.HexToAddress("0xAAAA000000000000000000000000000000000001"),
		Side:          SideBuy,
		Symbol:        "FOO",
		EntryPrice:    d("1.00"),
		TP1:           d("1.05"),
		TP2:           d("1.10"),
		StopLoss:      d("0.95"),
		Deadline:      time.Now().Add(time.Hour),
	}
}

func TestSignalValidate_Buy(t *testing.T) {
	sig := validBuySignal()
	if err := sig.Validate(time.Now()); err != nil {
		t.Fatalf("valid buy signal rejected: %v", err)
	}
}

func TestSignalValidate_BuyLevelOrdering(t *testing.T) {
	cases := []struct {
		name            string
		sl, entry       string
		tp1, tp2        string
		wantCode        errs.Code
	}{
		{"stop above entry", "1.01", "1.00", "1.05", "1.10", errs.InvalidPriceLevels},
		{"tp1 below entry", "0.95", "1.00", "0.99", "1.10", errs.InvalidPriceLevels},
		{"tp2 below tp1", "0.95", "1.00", "1.05", "1.04", errs.InvalidPriceLevels},
		{"zero price", "0", "1.00", "1.05", "1.10", errs.InvalidPriceLevels},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := validBuySignal()
			sig.StopLoss = d(tc.sl)
			sig.EntryPrice = d(tc.entry)
			sig.TP1 = d(tc.tp1)
			sig.TP2 = d(tc.tp2)
			err := sig.Validate(time.Now())
			if err == nil {
				t.Fatal("expected rejection")
			}
			if errs.CodeOf(err) != tc.wantCode {
				t.Errorf("expected %s, got %s", tc.wantCode, errs.CodeOf(err))
			}
		})
	}
}

func TestSignalValidate_Sell(t *testing.T) {
	sig := validBuySignal()
	sig.Side = SideSell
	sig.EntryPrice = d("1.00")
	sig.StopLoss = d("1.05")
	sig.TP1 = d("0.95")
	sig.TP2 = d("0.90")
	if err := sig.Validate(time.Now()); err != nil {
		t.Fatalf("valid sell signal rejected: %v", err)
	}

	// Mirrored ordering violated
	sig.TP2 = d("0.99")
	sig.TP1 = d("0.95")
	if err := sig.Validate(time.Now()); err == nil {
		t.Fatal("expected rejection for tp2 > tp1 on sell")
	}
}

func TestSignalValidate_Expired(t *testing.T) {
	sig := validBuySignal()
	sig.Deadline = time.Now().Add(-time.Minute)
	err := sig.Validate(time.Now())
	if errs.CodeOf(err) != errs.SignalExpired {
		t.Errorf("expected SIGNAL_EXPIRED, got %v", err)
	}

	// Deadline exactly now is not strictly in the future.
	now := time.Now()
	sig.Deadline = now
	if err := sig.Validate(now); err == nil {
		t.Error("deadline equal to now should be rejected")
	}
}

func TestSignalValidate_MissingFields(t *testing.T) {
	sig := validBuySignal()
	sig.CallerID = ""
	if errs.CodeOf(sig.Validate(time.Now())) != errs.InvalidSignalFormat {
		t.Error("expected INVALID_SIGNAL_FORMAT for missing caller")
	}

	sig = validBuySignal()
	sig.Side = "long"
	if errs.CodeOf(sig.Validate(time.Now())) != errs.InvalidSignalFormat {
		t.Error("expected INVALID_SIGNAL_FORMAT for bad side")
	}
}
