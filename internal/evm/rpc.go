// Package evm provides the Ethereum-family JSON-RPC adapter used for
// all chain reads and writes.
package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeData is the live gas pricing snapshot for a chain. Tip fields are
// nil on chains without EIP-1559 support.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Log is one event emitted by a transaction.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is a mined transaction's outcome. Status decoding is
// deliberately tolerant: providers return it as a hex quantity, a
// string, a boolean, or omit it entirely.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	GasUsed     uint64
	Logs        []Log

	statusKnown bool
	statusOK    bool
}

// Succeeded reports whether the receipt indicates success. Providers
// that omit the status field count as success when a final hash is
// present.
func (r *Receipt) Succeeded() bool {
	if r == nil {
		return false
	}
	if !r.statusKnown {
		return r.TxHash != (common.Hash{})
	}
	return r.statusOK
}

// SuccessReceipt builds a receipt with an explicit success status.
// Used by stubs and tests.
func SuccessReceipt(hash common.Hash) *Receipt {
	return &Receipt{TxHash: hash, BlockNumber: big.NewInt(1), statusKnown: true, statusOK: true}
}

// FailedReceipt builds a receipt with an explicit failed status.
func FailedReceipt(hash common.Hash) *Receipt {
	return &Receipt{TxHash: hash, BlockNumber: big.NewInt(1), statusKnown: true, statusOK: false}
}

// WithLogs attaches logs to the receipt and returns it.
func (r *Receipt) WithLogs(logs []Log) *Receipt {
	r.Logs = logs
	return r
}

// RPCProvider is the read/write chain contract the core consumes. One
// provider per network key.
type RPCProvider interface {
	// Code returns the contract bytecode at addr; empty means no
	// contract is deployed.
	Code(ctx context.Context, addr common.Address) ([]byte, error)

	// Balance returns the native-asset balance of addr in wei.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)

	// Call performs a read-only eth_call against to.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// FeeData reads current gas pricing.
	FeeData(ctx context.Context) (*FeeData, error)

	// SendRaw broadcasts a signed raw transaction and returns its hash.
	SendRaw(ctx context.Context, rawTx []byte) (common.Hash, error)

	// WaitReceipt polls until the transaction is mined or the timeout
	// elapses.
	WaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error)

	// ChainID returns the chain's numeric id.
	ChainID(ctx context.Context) (*big.Int, error)

	// Nonce returns the next transaction nonce for addr.
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
}
