// Package aggregator is the thin contract over the external DEX
// aggregator: executable swap quotes plus per-token minimum-amount
// advisories.
package aggregator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
)

// DefaultSlippageBps is 0.50%.
const DefaultSlippageBps = 50

// QuoteRequest asks for an executable swap route.
type QuoteRequest struct {
	NetworkKey    domain.NetworkKey
	WalletAddress common.Address
	SellBinding   domain.TokenBinding
	BuyBinding    domain.TokenBinding
	SellAmountRaw *big.Int
	SlippageBps   int
}

// RouteProvider is the collaborator contract.
type RouteProvider interface {
	// Quote returns a single-use executable call. The spender must be
	// granted allowance before execution.
	Quote(ctx context.Context, req QuoteRequest) (*domain.Quote, error)

	// MinSellAmountRaw is the aggregator's advisory minimum for a
	// token on a chain. Zero means no advisory.
	MinSellAmountRaw(ctx context.Context, symbol string, network domain.NetworkKey) (*big.Int, error)
}
