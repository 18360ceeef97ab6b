package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
)

// BuiltinSource serves the canonical token table loaded at startup.
// Entries here outrank both external sources.
type BuiltinSource struct {
	bySymbol map[string][]domain.TokenBinding
}

// NewBuiltinSource creates the highest-priority source from a static
// table.
func NewBuiltinSource(bindings []domain.TokenBinding) *BuiltinSource {
	s := &BuiltinSource{bySymbol: make(map[string][]domain.TokenBinding)}
	for _, b := range bindings {
		b.Source = domain.SourceKnown
		b.Verified = true
		s.bySymbol[b.Symbol] = append(s.bySymbol[b.Symbol], b)
	}
	return s
}

var _ Source = (*BuiltinSource)(nil)

// LookupTokenBindings returns the canonical bindings for symbol.
func (s *BuiltinSource) LookupTokenBindings(_ context.Context, symbol string) ([]domain.TokenBinding, error) {
	return s.bySymbol[symbol], nil
}

// DefaultBuiltinBindings is the shipped canonical table: the base
// stablecoins and wrapped natives on the supported networks. All other
// tokens come from the external sources.
func DefaultBuiltinBindings() []domain.TokenBinding {
	entry := func(symbol, network, address string, decimals int) domain.TokenBinding {
		return domain.TokenBinding{
			Symbol:          symbol,
			NetworkKey:      domain.NetworkKey(network),
			ContractAddress: common.HexToAddress(address),
			Decimals:        decimals,
		}
	}
	return []domain.TokenBinding{
		entry("USDC", "ethereum", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6),
		entry("USDC", "arbitrum", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", 6),
		entry("USDC", "base", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6),
		entry("USDC", "polygon", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", 6),
		entry("USDT", "ethereum", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6),
		entry("USDT", "arbitrum", "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", 6),
		entry("WETH", "ethereum", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18),
		entry("WETH", "arbitrum", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", 18),
		entry("WETH", "base", "0x4200000000000000000000000000000000000006", 18),
	}
}
