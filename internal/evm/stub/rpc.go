// Package stub provides a deterministic in-memory RPCProvider for
// tests.
package stub

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/evm"
)

// RPCProvider implements evm.RPCProvider against in-memory state.
// Calls are answered by CallFn when it is set, otherwise by the result
// scripted for the exact (contract, calldata) pair, so tests can script
// ERC-20 and Safe reads per contract.
type RPCProvider struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Codes        map[common.Address][]byte
	Balances     map[common.Address]*big.Int
	Fees         *evm.FeeData
	Nonces       map[common.Address]uint64

	// CallFn, when set, answers every eth_call. Otherwise CallResults
	// keyed by (to, hex calldata) are used.
	CallFn      func(to common.Address, data []byte) ([]byte, error)
	CallResults map[string][]byte

	// Receipts keyed by tx hash; SendRaw mints sequential hashes and
	// records the raw payloads in SentRaw.
	Receipts map[common.Hash]*evm.Receipt
	SentRaw  [][]byte
	// NextReceipt is returned for any hash without an explicit entry.
	NextReceipt *evm.Receipt

	SendErr error
}

// NewRPCProvider creates an empty stub provider for chain id 1.
func NewRPCProvider() *RPCProvider {
	return &RPCProvider{
		ChainIDValue: big.NewInt(1),
		Codes:        make(map[common.Address][]byte),
		Balances:     make(map[common.Address]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		CallResults:  make(map[string][]byte),
		Receipts:     make(map[common.Hash]*evm.Receipt),
		Fees:         &evm.FeeData{GasPrice: big.NewInt(1_000_000_000)},
	}
}

var _ evm.RPCProvider = (*RPCProvider)(nil)

func callKey(to common.Address, data []byte) string {
	return to.Hex() + "/" + common.Bytes2Hex(data)
}

// SetCall scripts the result of an eth_call against to with calldata.
func (p *RPCProvider) SetCall(to common.Address, data, result []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallResults[callKey(to, data)] = result
}

// SetUint256Call scripts an eth_call returning a uint256.
func (p *RPCProvider) SetUint256Call(to common.Address, data []byte, v *big.Int) {
	p.SetCall(to, data, common.LeftPadBytes(v.Bytes(), 32))
}

// Code returns scripted contract bytecode.
func (p *RPCProvider) Code(_ context.Context, addr common.Address) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Codes[addr], nil
}

// Balance returns the scripted native balance, zero by default.
func (p *RPCProvider) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.Balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Call answers a scripted eth_call.
func (p *RPCProvider) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	p.mu.Lock()
	fn := p.CallFn
	res, ok := p.CallResults[callKey(to, data)]
	p.mu.Unlock()

	if fn != nil {
		return fn(to, data)
	}
	if ok {
		return res, nil
	}
	return common.LeftPadBytes(nil, 32), nil
}

// FeeData returns the scripted fee snapshot.
func (p *RPCProvider) FeeData(_ context.Context) (*evm.FeeData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Fees, nil
}

// SendRaw records the payload and mints a deterministic hash.
func (p *RPCProvider) SendRaw(_ context.Context, rawTx []byte) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return common.Hash{}, p.SendErr
	}
	p.SentRaw = append(p.SentRaw, rawTx)
	var h common.Hash
	h[0] = byte(len(p.SentRaw))
	return h, nil
}

// WaitReceipt returns the scripted receipt for hash.
func (p *RPCProvider) WaitReceipt(_ context.Context, hash common.Hash, _ time.Duration) (*evm.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.Receipts[hash]; ok {
		return r, nil
	}
	if p.NextReceipt != nil {
		return p.NextReceipt, nil
	}
	return evm.SuccessReceipt(hash), nil
}

// ChainID returns the configured chain id.
func (p *RPCProvider) ChainID(_ context.Context) (*big.Int, error) {
	return p.ChainIDValue, nil
}

// Nonce returns and increments the scripted nonce.
func (p *RPCProvider) Nonce(_ context.Context, addr common.Address) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.Nonces[addr]
	p.Nonces[addr] = n + 1
	return n, nil
}
