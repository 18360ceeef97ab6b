package evm

import (
	"sync"

	"multisig-trader/internal/errs"
)

// NetworkKey mirrors domain.NetworkKey to keep this package free of a
// domain dependency; adapters convert at the boundary.
type NetworkKey string

// Providers maps network keys to their RPC providers. Safe for
// concurrent reads after construction.
type Providers struct {
	mu        sync.RWMutex
	providers map[NetworkKey]RPCProvider
}

// NewProviders creates an empty provider registry.
func NewProviders() *Providers {
	return &Providers{providers: make(map[NetworkKey]RPCProvider)}
}

// Register adds a provider for a network.
func (p *Providers) Register(network NetworkKey, rpc RPCProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providers[network] = rpc
}

// Provider returns the RPC provider for a network, or an
// UNSUPPORTED_NETWORK error.
func (p *Providers) Provider(network NetworkKey) (RPCProvider, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rpc, ok := p.providers[network]
	if !ok {
		return nil, errs.New(errs.UnsupportedNetwork, "no RPC provider configured for network %s", network).
			WithRecommendation("add the network's RPC endpoint to the configuration").
			WithContext(errs.Context{Service: "evm", NetworkKey: string(network)})
	}
	return rpc, nil
}

// Networks lists the registered network keys.
func (p *Providers) Networks() []NetworkKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]NetworkKey, 0, len(p.providers))
	for k := range p.providers {
		out = append(out, k)
	}
	return out
}
