package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"multisig-trader/internal/cache"
	"multisig-trader/internal/directory"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
)

// DefaultValidationTTL caches validation results per (wallet, network).
const DefaultValidationTTL = 2 * time.Minute

// Validation is a successful validation outcome.
type Validation struct {
	WalletAddress common.Address
	NetworkKey    domain.NetworkKey
	Owners        []common.Address
	Threshold     int
	NativeBalance *big.Int
	// LowGasWarning is set when the native balance is zero on a chain
	// where native tokens pay gas.
	LowGasWarning bool
}

// SafeFactory opens a Safe adapter for a wallet on a network. The
// orchestrator shares one adapter per (wallet, chain).
type SafeFactory interface {
	Safe(ctx context.Context, network domain.NetworkKey, walletAddress common.Address) (*Safe, error)
}

// Validator confirms a wallet is usable on a chain: directory record,
// on-chain deployment, owner configuration, gas funding.
type Validator struct {
	providers *evm.Providers
	safes     SafeFactory
	cache     *cache.TTLCache
	log       *zap.SugaredLogger
}

// NewValidator creates a Validator.
func NewValidator(providers *evm.Providers, safes SafeFactory, log *zap.SugaredLogger) (*Validator, error) {
	c, err := cache.New(10_000, DefaultValidationTTL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Validator{providers: providers, safes: safes, cache: c, log: log}, nil
}

func validationKey(wallet common.Address, network domain.NetworkKey) string {
	return wallet.Hex() + "/" + string(network)
}

// Invalidate drops the cached validation after an executor-observed
// state change for the wallet.
func (v *Validator) Invalidate(wallet common.Address, network domain.NetworkKey) {
	v.cache.Del(validationKey(wallet, network))
}

// Validate runs the §wallet checks. tradeIsNative upgrades the zero
// native-balance advisory to a hard failure, since the trade itself
// would spend the native asset.
func (v *Validator) Validate(ctx context.Context, record *directory.WalletRecord, wallet common.Address, network domain.NetworkKey, tradeIsNative bool) (*Validation, error) {
	// Step 1: the directory must list an active deployment. Checked
	// before the cache so a revoked deployment is never served stale.
	if record == nil || !record.ActiveOn(wallet, network) {
		return nil, errs.New(errs.SafeNotDeployed, "no active wallet deployment at %s on %s", wallet.Hex(), network).
			WithRecommendation(fmt.Sprintf("deploy the wallet on %s and activate it in the directory", network)).
			WithContext(errs.Context{Service: "validator", WalletAddress: wallet.Hex(), NetworkKey: string(network)})
	}

	val, err := v.cache.GetOrLoad(ctx, validationKey(wallet, network), func(ctx context.Context) (any, error) {
		return v.validateOnChain(ctx, wallet, network)
	})
	if err != nil {
		return nil, err
	}

	result := val.(*Validation)
	if result.LowGasWarning {
		v.log.Warnw("wallet has zero native balance; transactions may stall",
			"wallet", wallet.Hex(), "network", network)
		if tradeIsNative {
			return nil, errs.New(errs.SafeInsufficientBalance, "wallet %s has no native balance on %s for a native-denominated trade", wallet.Hex(), network).
				WithRecommendation("fund the wallet with the chain's native asset").
				WithContext(errs.Context{Service: "validator", WalletAddress: wallet.Hex(), NetworkKey: string(network)})
		}
	}
	return result, nil
}

// validateOnChain performs steps 2-4: code presence, owner config,
// native balance.
func (v *Validator) validateOnChain(ctx context.Context, wallet common.Address, network domain.NetworkKey) (*Validation, error) {
	rpc, err := v.providers.Provider(evm.NetworkKey(network))
	if err != nil {
		return nil, err
	}

	code, err := rpc.Code(ctx, wallet)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read contract code").
			WithContext(errs.Context{Service: "validator", WalletAddress: wallet.Hex(), NetworkKey: string(network)})
	}
	if len(code) == 0 {
		return nil, errs.New(errs.SafeNotDeployed, "no contract code at %s on %s", wallet.Hex(), network).
			WithRecommendation(fmt.Sprintf("deploy the wallet contract on %s", network)).
			WithContext(errs.Context{Service: "validator", WalletAddress: wallet.Hex(), NetworkKey: string(network)})
	}

	safe, err := v.safes.Safe(ctx, network, wallet)
	if err != nil {
		return nil, err
	}

	owners, err := safe.Owners(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read wallet owners")
	}
	threshold, err := safe.Threshold(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read wallet threshold")
	}
	if len(owners) == 0 || threshold < 1 {
		return nil, errs.New(errs.SafeInvalidConfiguration, "wallet %s has %d owners and threshold %d", wallet.Hex(), len(owners), threshold).
			WithRecommendation("repair the wallet's owner configuration before trading").
			WithContext(errs.Context{Service: "validator", WalletAddress: wallet.Hex(), NetworkKey: string(network)})
	}

	native, err := rpc.Balance(ctx, wallet)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read native balance")
	}

	return &Validation{
		WalletAddress: wallet,
		NetworkKey:    network,
		Owners:        owners,
		Threshold:     threshold,
		NativeBalance: native,
		LowGasWarning: native.Sign() == 0,
	}, nil
}
