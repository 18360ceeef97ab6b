// Package config collects the startup configuration surface. Policy
// fields are read once at startup; there is no runtime mutation.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
)

// Config is the full startup surface.
type Config struct {
	// Policy
	PositionPercentage     int   // base-stable percentage used by the sizer
	MinUsdCents            int64 // absolute lower bound for position USD value, in cents
	MaxPositionPercentage  int   // cap on sizer output
	NativeGasReserveRaw    *big.Int
	DefaultSlippageBps     int
	MonitorTickSeconds     int
	TrailingStopEnabled    bool
	TrailingRetracementPct int
	TP1ExitPercent         int
	ExecutorFanOut         int
	ReceiptWaitSeconds     int
	GasBumpPercent         int
	BaseSymbol             string

	// Endpoints
	ListenAddr      string
	MetricsAddr     string
	PriceFeedURL    string
	PriceStreamURL  string
	AggregatorURL   string
	RegistryURL     string
	ListingIndexURL string
	DirectoryURL    string

	// Chains: network key -> RPC endpoint.
	RPCEndpoints map[domain.NetworkKey]string
	// Permit contracts per chain; chains absent here skip the permit
	// leg.
	PermitContracts map[domain.NetworkKey]common.Address

	// Signing
	SignerKey string // agent signer private key, env only

	// Optional sinks
	KafkaBrokers  []string
	PostgresDSN   string
	ClickHouseDSN string

	// Logging
	LogLevel  string
	LogOutput string
	LogFile   string
}

// Default returns the shipped configuration.
func Default() Config {
	return Config{
		PositionPercentage:     20,
		MinUsdCents:            1,
		MaxPositionPercentage:  80,
		NativeGasReserveRaw:    new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil),
		DefaultSlippageBps:     50,
		MonitorTickSeconds:     30,
		TrailingStopEnabled:    true,
		TrailingRetracementPct: 2,
		TP1ExitPercent:         100,
		ExecutorFanOut:         8,
		ReceiptWaitSeconds:     120,
		GasBumpPercent:         20,
		BaseSymbol:             "USDC",
		ListenAddr:             ":8080",
		MetricsAddr:            ":9090",
		RPCEndpoints:           make(map[domain.NetworkKey]string),
		PermitContracts:        make(map[domain.NetworkKey]common.Address),
		LogLevel:               "info",
		LogOutput:              "console",
		LogFile:                "multisig-trader.log",
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if c.SignerKey == "" {
		return errs.New(errs.ConfigurationError, "agent signer key is not set").
			WithRecommendation("export SIGNER_KEY with the agent signer's private key")
	}
	if len(c.RPCEndpoints) == 0 {
		return errs.New(errs.ConfigurationError, "no RPC endpoints configured").
			WithRecommendation("set RPC_ENDPOINTS, e.g. arbitrum=https://...,base=https://...")
	}
	if c.PositionPercentage < 1 || c.PositionPercentage > c.MaxPositionPercentage {
		return errs.New(errs.ConfigurationError, "positionPercentage %d outside [1, %d]", c.PositionPercentage, c.MaxPositionPercentage)
	}
	return nil
}

// ParseRPCEndpoints parses "network=url,network=url" pairs.
func ParseRPCEndpoints(raw string) (map[domain.NetworkKey]string, error) {
	out := make(map[domain.NetworkKey]string)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed rpc endpoint entry %q (want network=url)", pair)
		}
		out[domain.NetworkKey(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return out, nil
}

// ParsePermitContracts parses "network=0xaddr" pairs.
func ParsePermitContracts(raw string) (map[domain.NetworkKey]common.Address, error) {
	out := make(map[domain.NetworkKey]common.Address)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("malformed permit contract entry %q (want network=0xaddress)", pair)
		}
		out[domain.NetworkKey(strings.TrimSpace(parts[0]))] = common.HexToAddress(parts[1])
	}
	return out, nil
}

// LoadEnvFile loads environment variables from .env if it exists.
// Existing variables are never overridden.
func LoadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
