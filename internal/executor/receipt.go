package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/evm"
)

// ExtractReceivedAmount sums ERC-20 Transfer events of token into
// recipient within the receipt. This is receipt-driven on purpose:
// routers settle through intermediate hops, and only the actual token
// movement into the wallet defines the fill.
func ExtractReceivedAmount(receipt *evm.Receipt, token, recipient common.Address) *big.Int {
	total := new(big.Int)
	if receipt == nil {
		return total
	}
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) < 3 {
			continue
		}
		if lg.Topics[0] != evm.ERC20TransferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		if len(lg.Data) < 32 {
			continue
		}
		value := new(big.Int).SetBytes(lg.Data[:32])
		if value.Sign() > 0 {
			total.Add(total, value)
		}
	}
	return total
}
