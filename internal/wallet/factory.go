package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/evm"
)

// Factory opens and caches one Safe adapter per (wallet, chain). The
// cached instance is shared across workers; its write path serialises
// internally.
type Factory struct {
	providers *evm.Providers
	signerKey string

	mu    sync.Mutex
	safes map[string]*Safe
}

// NewFactory creates a Factory using the agent signer key for every
// wallet.
func NewFactory(providers *evm.Providers, signerKey string) *Factory {
	return &Factory{
		providers: providers,
		signerKey: signerKey,
		safes:     make(map[string]*Safe),
	}
}

var _ SafeFactory = (*Factory)(nil)

// Safe returns the shared adapter for (network, wallet), creating it on
// first use.
func (f *Factory) Safe(ctx context.Context, network domain.NetworkKey, walletAddress common.Address) (*Safe, error) {
	key := string(network) + "/" + walletAddress.Hex()

	f.mu.Lock()
	if s, ok := f.safes[key]; ok {
		f.mu.Unlock()
		return s, nil
	}
	f.mu.Unlock()

	rpc, err := f.providers.Provider(evm.NetworkKey(network))
	if err != nil {
		return nil, err
	}

	s, err := Init(ctx, rpc, f.signerKey, walletAddress)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.safes[key]; ok {
		return existing, nil
	}
	f.safes[key] = s
	return s, nil
}
