// Package sizing computes concrete trade amounts from wallet balances
// under the percentage, gas-reserve and minimum-amount policies.
package sizing

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
	"multisig-trader/internal/evm"
)

// Policy bounds and defaults.
const (
	DefaultPercent = 20
	MinPercent     = 1
	MaxPercent     = 80
)

// DefaultGasReserveRaw is 0.001 in 18-decimal native units.
var DefaultGasReserveRaw = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

// stablecoins are assumed 1:1 to USD for the minimum-value policy.
var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
}

// IsStablecoin reports whether the symbol is treated as USD-pegged.
func IsStablecoin(symbol string) bool {
	return stablecoins[symbol]
}

// Config is the sizer's policy surface.
type Config struct {
	MaxPercent    int      // cap on effective percentage
	GasReserveRaw *big.Int // native units kept unspent
	MinUsdCents   int64    // USD minimum in cents, stablecoin bases only
}

// DefaultConfig returns the shipped policy.
func DefaultConfig() Config {
	return Config{
		MaxPercent:    MaxPercent,
		GasReserveRaw: DefaultGasReserveRaw,
		MinUsdCents:   1, // $0.01
	}
}

// Input is one sizing request. MinAmountRaw is the aggregator-driven
// per-token minimum, supplied by the caller; the sizer itself never
// talks to the aggregator.
type Input struct {
	WalletAddress common.Address
	NetworkKey    domain.NetworkKey
	SellBinding   domain.TokenBinding
	BuyBinding    domain.TokenBinding
	Percent       int
	MinAmountRaw  *big.Int
}

// Sizer reads balances from the chain and emits PositionPlans.
type Sizer struct {
	providers *evm.Providers
	config    Config
	log       *zap.SugaredLogger
}

// NewSizer creates a Sizer.
func NewSizer(providers *evm.Providers, config Config, log *zap.SugaredLogger) *Sizer {
	if config.MaxPercent == 0 {
		config.MaxPercent = MaxPercent
	}
	if config.GasReserveRaw == nil {
		config.GasReserveRaw = DefaultGasReserveRaw
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sizer{providers: providers, config: config, log: log}
}

// Plan sizes a position. All arithmetic is integer basis points on raw
// amounts; no floating point touches a raw value.
func (s *Sizer) Plan(ctx context.Context, in Input) (*domain.PositionPlan, error) {
	pct := in.Percent
	if pct == 0 {
		pct = DefaultPercent
	}
	if pct < MinPercent || pct > MaxPercent {
		return nil, errs.New(errs.InvalidPositionPercentage, "position percentage %d outside [%d, %d]", pct, MinPercent, MaxPercent).
			WithRecommendation(fmt.Sprintf("request a percentage between %d and %d", MinPercent, MaxPercent)).
			WithContext(errs.Context{Service: "sizer", WalletAddress: in.WalletAddress.Hex(), NetworkKey: string(in.NetworkKey)})
	}
	effective := pct
	rationale := fmt.Sprintf("%d%% of %s balance", pct, in.SellBinding.Symbol)
	if effective > s.config.MaxPercent {
		effective = s.config.MaxPercent
		rationale = fmt.Sprintf("%d%% requested, capped to %d%%", pct, effective)
	}

	rpc, err := s.providers.Provider(evm.NetworkKey(in.NetworkKey))
	if err != nil {
		return nil, err
	}

	var balance *big.Int
	if in.SellBinding.IsNative {
		balance, err = rpc.Balance(ctx, in.WalletAddress)
	} else {
		balance, err = evm.TokenBalance(ctx, rpc, in.SellBinding.ContractAddress, in.WalletAddress)
	}
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read %s balance", in.SellBinding.Symbol).
			WithContext(errs.Context{Service: "sizer", WalletAddress: in.WalletAddress.Hex(), NetworkKey: string(in.NetworkKey)})
	}

	// The gas reserve only applies when the trade spends the native
	// asset; ERC-style balances pay gas from the separate native
	// balance.
	gasReserve := new(big.Int)
	if in.SellBinding.IsNative {
		gasReserve.Set(s.config.GasReserveRaw)
	}

	available := new(big.Int).Sub(balance, gasReserve)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}

	sellAmount := domain.PercentOfRaw(available, int64(effective)*100)

	minRaw := s.minimumRaw(in)
	if sellAmount.Sign() <= 0 || sellAmount.Cmp(minRaw) < 0 {
		code := errs.PositionSizeTooSmall
		if IsStablecoin(in.SellBinding.Symbol) && balance.Sign() == 0 {
			code = errs.InsufficientStablecoinBalance
		}
		return nil, errs.New(code, "sized amount %s %s is below the minimum %s",
			domain.FormatRaw(sellAmount, in.SellBinding.Decimals), in.SellBinding.Symbol,
			domain.FormatRaw(minRaw, in.SellBinding.Decimals)).
			WithRecommendation("fund the wallet or request a larger percentage").
			WithContext(errs.Context{
				Service:       "sizer",
				WalletAddress: in.WalletAddress.Hex(),
				NetworkKey:    string(in.NetworkKey),
				Symbol:        in.SellBinding.Symbol,
			})
	}

	return &domain.PositionPlan{
		WalletAddress:       in.WalletAddress,
		NetworkKey:          in.NetworkKey,
		SellBinding:         in.SellBinding,
		BuyBinding:          in.BuyBinding,
		SellAmountRaw:       sellAmount,
		PercentageRequested: pct,
		PercentageEffective: effective,
		MinAmountRaw:        minRaw,
		GasReserveRaw:       gasReserve,
		Rationale:           rationale,
	}, nil
}

// minimumRaw is the larger of the USD-equivalent minimum (stablecoin
// bases only, 1:1 assumption) and the aggregator-driven per-token
// minimum.
func (s *Sizer) minimumRaw(in Input) *big.Int {
	min := new(big.Int)
	if IsStablecoin(in.SellBinding.Symbol) && s.config.MinUsdCents > 0 {
		// cents * 10^decimals / 100
		usdMin := new(big.Int).Mul(big.NewInt(s.config.MinUsdCents), domain.Pow10(in.SellBinding.Decimals))
		usdMin.Quo(usdMin, big.NewInt(100))
		min.Set(usdMin)
	}
	if in.MinAmountRaw != nil && in.MinAmountRaw.Cmp(min) > 0 {
		min.Set(in.MinAmountRaw)
	}
	return min
}
