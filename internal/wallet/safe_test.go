package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/evm"
	evmstub "multisig-trader/internal/evm/stub"
)

// testSignerKey is a throwaway development key.
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testWallet = common.HexToAddress("0xAAAA000000000000000000000000000000000001")

// encodeAddressArray ABI-encodes an address[] return value the way a
// node would.
func encodeAddressArray(addrs []common.Address) []byte {
	out := common.LeftPadBytes(big.NewInt(32).Bytes(), 32)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(addrs))).Bytes(), 32)...)
	for _, a := range addrs {
		out = append(out, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	return out
}

func newTestSafe(t *testing.T) (*Safe, *evmstub.RPCProvider) {
	t.Helper()
	rpc := evmstub.NewRPCProvider()
	safe, err := Init(context.Background(), rpc, testSignerKey, testWallet)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return safe, rpc
}

func TestInit_RejectsBadKey(t *testing.T) {
	rpc := evmstub.NewRPCProvider()
	if _, err := Init(context.Background(), rpc, "not-a-key", testWallet); err == nil {
		t.Fatal("expected invalid key rejection")
	}
}

func TestOwnersAndThreshold(t *testing.T) {
	safe, rpc := newTestSafe(t)

	owners := []common.Address{
		safe.SignerAddress(),
		common.HexToAddress("0x0000000000000000000000000000000000000099"),
	}
	rpc.SetCall(testWallet, append([]byte{}, evm.OwnersSelector...), encodeAddressArray(owners))
	rpc.SetUint256Call(testWallet, append([]byte{}, evm.ThresholdSelector...), big.NewInt(1))

	got, err := safe.Owners(context.Background())
	if err != nil {
		t.Fatalf("Owners: %v", err)
	}
	if len(got) != 2 || got[0] != owners[0] || got[1] != owners[1] {
		t.Errorf("owners mismatch: %v", got)
	}

	th, err := safe.Threshold(context.Background())
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if th != 1 {
		t.Errorf("expected threshold 1, got %d", th)
	}
}

func TestNewTx_SingleCallOnly(t *testing.T) {
	safe, _ := newTestSafe(t)

	if _, err := safe.NewTx(nil); err == nil {
		t.Error("empty batch should be rejected")
	}
	if _, err := safe.NewTx(make([]Call, 2)); err == nil {
		t.Error("multi-call batch should be rejected")
	}

	unsigned, err := safe.NewTx([]Call{{
		To:   common.HexToAddress("0x0000000000000000000000000000000000000051"),
		Data: []byte{0x12, 0x34},
	}})
	if err != nil {
		t.Fatalf("NewTx: %v", err)
	}
	if unsigned.To != testWallet {
		t.Errorf("wallet transaction must target the wallet contract, got %s", unsigned.To.Hex())
	}
	if len(unsigned.Data) < 4 {
		t.Fatal("missing calldata")
	}
	for i := range execTransactionSelector {
		if unsigned.Data[i] != execTransactionSelector[i] {
			t.Fatal("calldata must start with the execTransaction selector")
		}
	}
}

func TestPackExecTransaction_Offsets(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0x01} // 5 bytes, pads to 32
	sigs := make([]byte, 65)
	packed := packExecTransaction(
		common.HexToAddress("0x0000000000000000000000000000000000000051"),
		big.NewInt(7),
		data,
		sigs,
	)

	body := packed[4:] // strip selector

	// Word 2 holds the data offset: 10 head words * 32 bytes.
	dataOffset := new(big.Int).SetBytes(body[64:96]).Int64()
	if dataOffset != 320 {
		t.Errorf("expected data offset 320, got %d", dataOffset)
	}

	// The data tail starts with its length.
	dataLen := new(big.Int).SetBytes(body[dataOffset : dataOffset+32]).Int64()
	if dataLen != int64(len(data)) {
		t.Errorf("expected data length %d, got %d", len(data), dataLen)
	}

	// Signatures offset = data offset + 32 (length word) + padded data.
	sigOffset := new(big.Int).SetBytes(body[288:320]).Int64()
	if sigOffset != 320+32+32 {
		t.Errorf("expected signatures offset %d, got %d", 320+32+32, sigOffset)
	}
	sigLen := new(big.Int).SetBytes(body[sigOffset : sigOffset+32]).Int64()
	if sigLen != 65 {
		t.Errorf("expected signature length 65, got %d", sigLen)
	}
}

func TestSignAndExecute_Broadcasts(t *testing.T) {
	safe, rpc := newTestSafe(t)
	rpc.Fees = &evm.FeeData{GasPrice: big.NewInt(2_000_000_000)}

	unsigned, err := safe.NewTx([]Call{{
		To:   common.HexToAddress("0x0000000000000000000000000000000000000051"),
		Data: []byte{0x01},
	}})
	if err != nil {
		t.Fatal(err)
	}

	signed, err := safe.Sign(context.Background(), unsigned, GasOptions{GasPrice: big.NewInt(2_000_000_000)})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(signed.Raw) == 0 {
		t.Fatal("signed transaction has no payload")
	}

	pending, err := safe.Execute(context.Background(), signed)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rpc.SentRaw) != 1 {
		t.Errorf("expected 1 broadcast, got %d", len(rpc.SentRaw))
	}

	receipt, err := pending.Wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !receipt.Succeeded() {
		t.Error("stub receipt should succeed")
	}
}

func TestDecodeAddressArray_Malformed(t *testing.T) {
	if _, err := decodeAddressArray([]byte{0x01}); err == nil {
		t.Error("short payload should be rejected")
	}
}
