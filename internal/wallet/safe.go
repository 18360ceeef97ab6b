// Package wallet wraps the caller's multi-signature smart-contract
// wallet: on-chain validation plus building, signing and broadcasting
// wallet transactions through the agent signer.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
)

// execTransactionSelector is the wallet's single-call execution entry
// point.
var execTransactionSelector = crypto.Keccak256([]byte(
	"execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)"))[:4]

// Call is one (to, value, data) the wallet should execute.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// UnsignedTx is a built but unsigned wallet transaction.
type UnsignedTx struct {
	To      common.Address // the wallet contract
	Data    []byte         // execTransaction calldata
	GasHint uint64
}

// SignedTx is a signed, broadcast-ready transaction.
type SignedTx struct {
	Raw  []byte
	Hash common.Hash
}

// GasOptions overrides gas pricing for one execution.
type GasOptions struct {
	GasPrice             *big.Int // legacy
	MaxFeePerGas         *big.Int // EIP-1559
	MaxPriorityFeePerGas *big.Int
	GasLimit             uint64
}

// PendingTx is a broadcast transaction awaiting confirmation.
type PendingTx struct {
	TxHash common.Hash
	rpc    evm.RPCProvider
}

// Wait blocks until the transaction is mined or timeout elapses.
func (p *PendingTx) Wait(ctx context.Context, timeout time.Duration) (*evm.Receipt, error) {
	return p.rpc.WaitReceipt(ctx, p.TxHash, timeout)
}

// Safe is the per-(wallet, chain) adapter instance. Reads are safe for
// concurrent use; signing and broadcasting serialise behind the
// adapter's mutex so concurrent workers cannot race the signer nonce.
type Safe struct {
	rpc        evm.RPCProvider
	address    common.Address
	signer     *ecdsa.PrivateKey
	signerAddr common.Address
	chainID    *big.Int

	writeMu sync.Mutex
}

// Init connects the adapter: parses the signer key and reads the chain
// id from the RPC provider.
func Init(ctx context.Context, rpc evm.RPCProvider, signerKey string, walletAddress common.Address) (*Safe, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKey, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, err, "invalid agent signer key")
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	return &Safe{
		rpc:        rpc,
		address:    walletAddress,
		signer:     key,
		signerAddr: crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the wallet contract address.
func (s *Safe) Address() common.Address {
	return s.address
}

// SignerAddress returns the agent signer's address.
func (s *Safe) SignerAddress() common.Address {
	return s.signerAddr
}

// Owners reads the wallet's owner set.
func (s *Safe) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := s.rpc.Call(ctx, s.address, append([]byte{}, evm.OwnersSelector...))
	if err != nil {
		return nil, fmt.Errorf("getOwners(): %w", err)
	}
	return decodeAddressArray(out)
}

// Threshold reads the wallet's signature threshold.
func (s *Safe) Threshold(ctx context.Context) (int, error) {
	out, err := s.rpc.Call(ctx, s.address, append([]byte{}, evm.ThresholdSelector...))
	if err != nil {
		return 0, fmt.Errorf("getThreshold(): %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("getThreshold returned empty result")
	}
	return int(new(big.Int).SetBytes(out).Int64()), nil
}

// NewTx builds the wallet transaction carrying the calls. Only
// single-call batches are supported; multi-call batching requires the
// wallet's multisend module which the agent does not use.
func (s *Safe) NewTx(calls []Call) (*UnsignedTx, error) {
	if len(calls) != 1 {
		return nil, errs.New(errs.SwapExecutionFailed, "expected exactly one call, got %d", len(calls))
	}
	call := calls[0]

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	data := packExecTransaction(call.To, value, call.Data, s.approvedHashSignature())
	return &UnsignedTx{To: s.address, Data: data}, nil
}

// Sign wraps the wallet call into an outer transaction from the agent
// signer and signs it. Gas pricing comes from opts.
func (s *Safe) Sign(ctx context.Context, unsigned *UnsignedTx, opts GasOptions) (*SignedTx, error) {
	nonce, err := s.rpc.Nonce(ctx, s.signerAddr)
	if err != nil {
		return nil, fmt.Errorf("read signer nonce: %w", err)
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit = unsigned.GasHint
	}
	if gasLimit == 0 {
		gasLimit = 600_000
	}

	var tx *types.Transaction
	if opts.MaxFeePerGas != nil && opts.MaxPriorityFeePerGas != nil {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: opts.MaxPriorityFeePerGas,
			GasFeeCap: opts.MaxFeePerGas,
			Gas:       gasLimit,
			To:        &unsigned.To,
			Data:      unsigned.Data,
		})
	} else {
		gasPrice := opts.GasPrice
		if gasPrice == nil {
			fd, err := s.rpc.FeeData(ctx)
			if err != nil {
				return nil, fmt.Errorf("read fee data: %w", err)
			}
			gasPrice = fd.GasPrice
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &unsigned.To,
			Data:     unsigned.Data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.signer)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	return &SignedTx{Raw: raw, Hash: signed.Hash()}, nil
}

// Execute broadcasts the signed transaction.
func (s *Safe) Execute(ctx context.Context, signed *SignedTx) (*PendingTx, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	hash, err := s.rpc.SendRaw(ctx, signed.Raw)
	if err != nil {
		return nil, err
	}
	return &PendingTx{TxHash: hash, rpc: s.rpc}, nil
}

// approvedHashSignature builds the pre-approved signature for the agent
// signer: the wallet accepts (r = owner, s = 0, v = 1) when the owner
// is the transaction sender. This satisfies a threshold-of-one wallet
// without an extra on-chain approval.
func (s *Safe) approvedHashSignature() []byte {
	sig := make([]byte, 65)
	copy(sig[0:32], common.LeftPadBytes(s.signerAddr.Bytes(), 32))
	sig[64] = 1
	return sig
}

// packExecTransaction ABI-encodes the wallet's execTransaction call.
// Layout: 8 static words, two dynamic tails (data, signatures).
func packExecTransaction(to common.Address, value *big.Int, data, signatures []byte) []byte {
	pad32 := func(b []byte) []byte { return common.LeftPadBytes(b, 32) }
	word := func(n int64) []byte { return pad32(big.NewInt(n).Bytes()) }
	padded := func(b []byte) []byte {
		out := append([]byte{}, pad32(big.NewInt(int64(len(b))).Bytes())...)
		out = append(out, b...)
		if rem := len(b) % 32; rem != 0 {
			out = append(out, make([]byte, 32-rem)...)
		}
		return out
	}

	// Head: to, value, offset(data), operation, safeTxGas, baseGas,
	// gasPrice, gasToken, refundReceiver, offset(signatures).
	const headWords = 10
	dataTail := padded(data)
	dataOffset := int64(headWords * 32)
	sigOffset := dataOffset + int64(len(dataTail))

	out := append([]byte{}, execTransactionSelector...)
	out = append(out, pad32(to.Bytes())...)
	out = append(out, pad32(value.Bytes())...)
	out = append(out, word(dataOffset)...)
	out = append(out, word(0)...) // operation: CALL
	out = append(out, word(0)...) // safeTxGas
	out = append(out, word(0)...) // baseGas
	out = append(out, word(0)...) // gasPrice
	out = append(out, pad32(nil)...)
	out = append(out, pad32(nil)...)
	out = append(out, word(sigOffset)...)
	out = append(out, dataTail...)
	out = append(out, padded(signatures)...)
	return out
}

// decodeAddressArray decodes an ABI-encoded address[] return value.
func decodeAddressArray(out []byte) ([]common.Address, error) {
	if len(out) < 64 {
		return nil, fmt.Errorf("address array result too short (%d bytes)", len(out))
	}
	offset := int(new(big.Int).SetBytes(out[:32]).Int64())
	if offset+32 > len(out) {
		return nil, fmt.Errorf("invalid array offset %d", offset)
	}
	n := int(new(big.Int).SetBytes(out[offset : offset+32]).Int64())
	start := offset + 32
	if start+n*32 > len(out) {
		return nil, fmt.Errorf("array of %d addresses out of range", n)
	}
	addrs := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		w := start + i*32
		addrs = append(addrs, common.BytesToAddress(out[w+12:w+32]))
	}
	return addrs, nil
}
