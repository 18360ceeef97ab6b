package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkKey identifies a chain ("arbitrum", "base", ...). It is opaque
// to the core and round-trips through the adapters unchanged.
type NetworkKey string

// BindingSource records where a token binding was resolved from.
// Sources are ranked: known > registry > dex-listing.
type BindingSource string

const (
	SourceKnown      BindingSource = "known"
	SourceRegistry   BindingSource = "registry"
	SourceDexListing BindingSource = "dex-listing"
)

// sourceRank orders binding sources, lowest first.
var sourceRank = map[BindingSource]int{
	SourceKnown:      0,
	SourceRegistry:   1,
	SourceDexListing: 2,
}

// Rank returns the ordering weight of the source (lower is better).
func (s BindingSource) Rank() int {
	if r, ok := sourceRank[s]; ok {
		return r
	}
	return len(sourceRank)
}

// NativeTokenAddress is the sentinel contract address the aggregator
// uses for chain-native assets.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// TokenBinding resolves a symbol to a concrete contract on one chain.
type TokenBinding struct {
	Symbol          string
	NetworkKey      NetworkKey
	ContractAddress common.Address
	Decimals        int
	IsNative        bool
	Source          BindingSource
	Verified        bool // e.g. listing-index liquidity above threshold
}

// Balance is a wallet's holding of one token in its smallest unit.
type Balance struct {
	WalletAddress common.Address
	NetworkKey    NetworkKey
	Binding       TokenBinding
	Raw           *big.Int
}

// WalletDeployment is one row of the caller's directory record. The
// directory owns it; the core only reads.
type WalletDeployment struct {
	CallerID      string
	WalletAddress common.Address
	NetworkKey    NetworkKey
	Active        bool
	Status        string // "deployed", "pending", ...
}
