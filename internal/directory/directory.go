// Package directory provides the read-only user/wallet directory
// collaborator. The directory is authoritative for which multi-sig
// deployments a caller may trade through; the core never writes to it.
package directory

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
)

// ErrNotFound is returned when the caller has no directory record.
var ErrNotFound = errors.New("wallet record not found")

// WalletRecord is a caller's directory entry.
type WalletRecord struct {
	CallerID          string
	ActiveDeployments []domain.WalletDeployment
}

// Directory is the collaborator contract.
type Directory interface {
	// GetWallet returns the caller's record. walletAddress narrows the
	// lookup when the caller operates several wallets; the zero address
	// returns all deployments.
	GetWallet(ctx context.Context, callerID string, walletAddress common.Address) (*WalletRecord, error)
}

// ActiveOn reports whether the record lists an active deployment of
// walletAddress on network.
func (r *WalletRecord) ActiveOn(walletAddress common.Address, network domain.NetworkKey) bool {
	for _, d := range r.ActiveDeployments {
		if d.Active && d.WalletAddress == walletAddress && d.NetworkKey == network {
			return true
		}
	}
	return false
}

// ActiveNetworks returns the set of networks with an active deployment
// of walletAddress.
func (r *WalletRecord) ActiveNetworks(walletAddress common.Address) map[domain.NetworkKey]bool {
	out := make(map[domain.NetworkKey]bool)
	for _, d := range r.ActiveDeployments {
		if d.Active && d.WalletAddress == walletAddress {
			out[d.NetworkKey] = true
		}
	}
	return out
}
