package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-20 and Safe call selectors, derived the canonical way from the
// function signatures.
var (
	BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	ApproveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	DecimalsSelector  = crypto.Keccak256([]byte("decimals()"))[:4]
	OwnersSelector    = crypto.Keccak256([]byte("getOwners()"))[:4]
	ThresholdSelector = crypto.Keccak256([]byte("getThreshold()"))[:4]

	// ERC20TransferTopic is the Transfer(address,address,uint256) event
	// signature hash, used to extract fills from swap receipts.
	ERC20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

// MaxUint256 is the unlimited-approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// BalanceOfData encodes balanceOf(owner).
func BalanceOfData(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

// AllowanceData encodes allowance(owner, spender).
func AllowanceData(owner, spender common.Address) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, AllowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return data
}

// ApproveData encodes approve(spender, amount).
func ApproveData(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, ApproveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// TokenBalance reads the ERC-20 balance of owner on token via rpc.
func TokenBalance(ctx context.Context, rpc RPCProvider, token, owner common.Address) (*big.Int, error) {
	out, err := rpc.Call(ctx, token, BalanceOfData(owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf returned empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenAllowance reads allowance(owner, spender) on token via rpc.
func TokenAllowance(ctx context.Context, rpc RPCProvider, token, owner, spender common.Address) (*big.Int, error) {
	out, err := rpc.Call(ctx, token, AllowanceData(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s): %w", owner.Hex(), spender.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("allowance returned empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenDecimals reads decimals() on token via rpc.
func TokenDecimals(ctx context.Context, rpc RPCProvider, token common.Address) (int, error) {
	out, err := rpc.Call(ctx, token, append([]byte{}, DecimalsSelector...))
	if err != nil {
		return 0, fmt.Errorf("decimals(): %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals returned empty result")
	}
	return int(new(big.Int).SetBytes(out).Int64()), nil
}
