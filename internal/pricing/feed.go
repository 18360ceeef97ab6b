// Package pricing provides the price-feed collaborator: single and
// batched USD price lookups, an HTTP implementation, and a streaming
// WebSocket layer that fronts it.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownToken is returned when the feed does not know the symbol.
var ErrUnknownToken = errors.New("unknown token")

// PricePoint is one observation of a token's USD price.
type PricePoint struct {
	Symbol    string
	PriceUSD  decimal.Decimal
	Change24h decimal.Decimal
	Volume24h decimal.Decimal
	At        time.Time
}

// PriceFeed is the collaborator contract. Implementations must support
// batching; the monitor fetches all active symbols in one pass.
type PriceFeed interface {
	// GetPrice looks up a single symbol. Returns ErrUnknownToken for
	// symbols the feed cannot price.
	GetPrice(ctx context.Context, symbol string) (*PricePoint, error)

	// GetPrices looks up several symbols at once. Unknown symbols are
	// absent from the result; the call fails only when the feed itself
	// is unreachable.
	GetPrices(ctx context.Context, symbols []string) (map[string]*PricePoint, error)
}
