// Package stub provides a deterministic in-memory Directory for tests.
package stub

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/directory"
	"multisig-trader/internal/domain"
)

// Directory implements directory.Directory from a static deployment
// table.
type Directory struct {
	mu      sync.Mutex
	records map[string][]domain.WalletDeployment
}

// NewDirectory creates an empty stub directory.
func NewDirectory() *Directory {
	return &Directory{records: make(map[string][]domain.WalletDeployment)}
}

var _ directory.Directory = (*Directory)(nil)

// AddDeployment registers a deployment for a caller.
func (d *Directory) AddDeployment(callerID string, wallet common.Address, network domain.NetworkKey, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := "deployed"
	if !active {
		status = "pending"
	}
	d.records[callerID] = append(d.records[callerID], domain.WalletDeployment{
		CallerID:      callerID,
		WalletAddress: wallet,
		NetworkKey:    network,
		Active:        active,
		Status:        status,
	})
}

// GetWallet returns the caller's record filtered by wallet address.
func (d *Directory) GetWallet(_ context.Context, callerID string, walletAddress common.Address) (*directory.WalletRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deployments, ok := d.records[callerID]
	if !ok {
		return nil, directory.ErrNotFound
	}

	rec := &directory.WalletRecord{CallerID: callerID}
	for _, dep := range deployments {
		if walletAddress != (common.Address{}) && dep.WalletAddress != walletAddress {
			continue
		}
		rec.ActiveDeployments = append(rec.ActiveDeployments, dep)
	}
	return rec, nil
}
