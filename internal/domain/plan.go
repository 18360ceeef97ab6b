package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionPlan is the sizer's output: a concrete, fundable sell amount.
// Single-use; it must not outlive the work unit that produced it.
type PositionPlan struct {
	WalletAddress       common.Address
	NetworkKey          NetworkKey
	SellBinding         TokenBinding
	BuyBinding          TokenBinding
	SellAmountRaw       *big.Int
	PercentageRequested int
	PercentageEffective int
	MinAmountRaw        *big.Int
	GasReserveRaw       *big.Int
	Rationale           string
}

// Quote is a single-use executable swap call from the aggregator. The
// core treats everything except Spender as opaque.
type Quote struct {
	To               common.Address
	Data             []byte
	Value            *big.Int
	GasHint          uint64
	Spender          common.Address
	BuyAmountHintRaw *big.Int
}
