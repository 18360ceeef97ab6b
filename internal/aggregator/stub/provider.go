// Package stub provides a deterministic in-memory RouteProvider for
// tests.
package stub

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/aggregator"
	"multisig-trader/internal/domain"
)

// RouteProvider implements aggregator.RouteProvider with scripted
// quotes.
type RouteProvider struct {
	mu sync.Mutex

	// Router and Spender are used for every quote.
	Router  common.Address
	Spender common.Address
	// MinAmounts keyed by symbol/network.
	MinAmounts map[string]*big.Int
	// Err fails every quote when set.
	Err error
	// QuoteCalls counts issued quotes.
	QuoteCalls int
}

// NewRouteProvider creates a stub with fixed router and spender
// addresses.
func NewRouteProvider() *RouteProvider {
	return &RouteProvider{
		Router:     common.HexToAddress("0x0000000000000000000000000000000000000051"),
		Spender:    common.HexToAddress("0x0000000000000000000000000000000000000061"),
		MinAmounts: make(map[string]*big.Int),
	}
}

var _ aggregator.RouteProvider = (*RouteProvider)(nil)

// SetMinAmount scripts the advisory for symbol on network.
func (p *RouteProvider) SetMinAmount(symbol string, network domain.NetworkKey, min *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MinAmounts[symbol+"/"+string(network)] = min
}

// Quote returns a synthetic executable call echoing the request.
func (p *RouteProvider) Quote(_ context.Context, req aggregator.QuoteRequest) (*domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.QuoteCalls++

	value := new(big.Int)
	if req.SellBinding.IsNative {
		value.Set(req.SellAmountRaw)
	}
	return &domain.Quote{
		To:               p.Router,
		Data:             append([]byte{0x12, 0x34}, req.SellAmountRaw.Bytes()...),
		Value:            value,
		GasHint:          250_000,
		Spender:          p.Spender,
		BuyAmountHintRaw: new(big.Int).Set(req.SellAmountRaw),
	}, nil
}

// MinSellAmountRaw returns the scripted advisory, zero by default.
func (p *RouteProvider) MinSellAmountRaw(_ context.Context, symbol string, network domain.NetworkKey) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if min, ok := p.MinAmounts[symbol+"/"+string(network)]; ok {
		return new(big.Int).Set(min), nil
	}
	return new(big.Int), nil
}
