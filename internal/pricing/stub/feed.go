// Package stub provides a deterministic in-memory PriceFeed for tests.
package stub

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"multisig-trader/internal/pricing"
)

// PriceFeed implements pricing.PriceFeed with scripted per-symbol
// price sequences. Each lookup consumes the next value in the symbol's
// sequence; the last value repeats once the sequence is exhausted.
type PriceFeed struct {
	mu        sync.Mutex
	sequences map[string][]decimal.Decimal
	cursor    map[string]int

	// Err, when set, fails every lookup.
	Err error
	// Calls counts batched lookups.
	Calls int
}

// NewPriceFeed creates an empty stub feed.
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{
		sequences: make(map[string][]decimal.Decimal),
		cursor:    make(map[string]int),
	}
}

var _ pricing.PriceFeed = (*PriceFeed)(nil)

// SetPrice scripts a constant price for symbol.
func (f *PriceFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.SetSequence(symbol, price)
}

// SetSequence scripts a price sequence for symbol, consumed one value
// per lookup.
func (f *PriceFeed) SetSequence(symbol string, prices ...decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences[symbol] = prices
	f.cursor[symbol] = 0
}

func (f *PriceFeed) next(symbol string) (decimal.Decimal, bool) {
	seq, ok := f.sequences[symbol]
	if !ok || len(seq) == 0 {
		return decimal.Decimal{}, false
	}
	i := f.cursor[symbol]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		f.cursor[symbol] = i + 1
	}
	return seq[i], true
}

// GetPrice returns the next scripted price for symbol.
func (f *PriceFeed) GetPrice(_ context.Context, symbol string) (*pricing.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.next(symbol)
	if !ok {
		return nil, pricing.ErrUnknownToken
	}
	return &pricing.PricePoint{Symbol: symbol, PriceUSD: p, At: time.Now()}, nil
}

// GetPrices returns the next scripted price for each known symbol.
func (f *PriceFeed) GetPrices(_ context.Context, symbols []string) (map[string]*pricing.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]*pricing.PricePoint, len(symbols))
	for _, s := range symbols {
		if p, ok := f.next(s); ok {
			out[s] = &pricing.PricePoint{Symbol: s, PriceUSD: p, At: time.Now()}
		}
	}
	return out, nil
}
