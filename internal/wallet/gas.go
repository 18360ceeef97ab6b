package wallet

import (
	"context"
	"fmt"
	"math/big"

	"multisig-trader/internal/evm"
)

// DefaultGasBumpPercent is the legacy gas-price multiplier bump.
const DefaultGasBumpPercent = 20

// DefaultGasFloorWei is 0.1 gwei, the clamp for low-fee chains.
var DefaultGasFloorWei = big.NewInt(100_000_000)

// SuggestGas reads live fee data and produces gas options: EIP-1559
// tips when the chain offers them, otherwise the legacy price bumped by
// bumpPercent and clamped to floorWei.
func SuggestGas(ctx context.Context, rpc evm.RPCProvider, bumpPercent int, floorWei *big.Int) (GasOptions, error) {
	fd, err := rpc.FeeData(ctx)
	if err != nil {
		return GasOptions{}, fmt.Errorf("read fee data: %w", err)
	}

	if fd.MaxFeePerGas != nil && fd.MaxPriorityFeePerGas != nil {
		return GasOptions{
			MaxFeePerGas:         fd.MaxFeePerGas,
			MaxPriorityFeePerGas: fd.MaxPriorityFeePerGas,
		}, nil
	}

	if bumpPercent <= 0 {
		bumpPercent = DefaultGasBumpPercent
	}
	price := new(big.Int).Mul(fd.GasPrice, big.NewInt(int64(100+bumpPercent)))
	price.Quo(price, big.NewInt(100))

	if floorWei == nil {
		floorWei = DefaultGasFloorWei
	}
	if price.Cmp(floorWei) < 0 {
		price.Set(floorWei)
	}
	return GasOptions{GasPrice: price}, nil
}
