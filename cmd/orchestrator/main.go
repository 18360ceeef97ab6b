// Package main runs the unified trade orchestrator: HTTP signal
// ingress, validation pipeline, execution scheduler, position monitor,
// event bus, journal, and metrics.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"multisig-trader/internal/aggregator"
	"multisig-trader/internal/allowance"
	"multisig-trader/internal/bus"
	"multisig-trader/internal/config"
	"multisig-trader/internal/directory"
	"multisig-trader/internal/evm"
	"multisig-trader/internal/executor"
	"multisig-trader/internal/flow"
	"multisig-trader/internal/ingress"
	"multisig-trader/internal/journal"
	chstore "multisig-trader/internal/journal/clickhouse"
	"multisig-trader/internal/journal/memory"
	pgstore "multisig-trader/internal/journal/postgres"
	"multisig-trader/internal/logger"
	"multisig-trader/internal/monitor"
	"multisig-trader/internal/observability"
	"multisig-trader/internal/orchestrator"
	"multisig-trader/internal/pricing"
	"multisig-trader/internal/registry"
	"multisig-trader/internal/sizing"
	"multisig-trader/internal/wallet"
)

func main() {
	// Load .env file if exists
	config.LoadEnvFile()

	cfg := config.Default()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", cfg.ListenAddr), "Signal ingress HTTP address")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", cfg.MetricsAddr), "Prometheus metrics HTTP address")
	priceFeedURL := flag.String("price-feed-url", os.Getenv("PRICE_FEED_URL"), "Price feed base URL")
	priceStreamURL := flag.String("price-stream-url", os.Getenv("PRICE_STREAM_URL"), "Optional price feed WebSocket URL")
	aggregatorURL := flag.String("aggregator-url", os.Getenv("AGGREGATOR_URL"), "DEX aggregator base URL")
	registryURL := flag.String("registry-url", os.Getenv("REGISTRY_URL"), "Token metadata registry base URL")
	listingURL := flag.String("listing-index-url", os.Getenv("LISTING_INDEX_URL"), "DEX listing index base URL")
	directoryURL := flag.String("directory-url", os.Getenv("DIRECTORY_URL"), "User/wallet directory base URL")
	rpcEndpoints := flag.String("rpc-endpoints", os.Getenv("RPC_ENDPOINTS"), "Comma-separated network=url RPC endpoints")
	permits := flag.String("permit-contracts", os.Getenv("PERMIT_CONTRACTS"), "Comma-separated network=0xaddress permit contracts")
	kafkaBrokers := flag.String("kafka-brokers", os.Getenv("KAFKA_BROKERS"), "Optional comma-separated Kafka brokers for the event bus")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Optional PostgreSQL DSN for the trade journal")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "Optional ClickHouse DSN for tick analytics")
	positionPct := flag.Int("position-percentage", envOrInt("POSITION_PERCENTAGE", cfg.PositionPercentage), "Base-stable percentage used by the sizer")
	monitorTick := flag.Int("monitor-tick-seconds", envOrInt("MONITOR_TICK_SECONDS", cfg.MonitorTickSeconds), "Monitor cadence in seconds")
	fanOut := flag.Int("executor-fan-out", envOrInt("EXECUTOR_FAN_OUT", cfg.ExecutorFanOut), "Max concurrent executor calls")
	receiptWait := flag.Int("receipt-wait-seconds", envOrInt("RECEIPT_WAIT_SECONDS", cfg.ReceiptWaitSeconds), "Per-tx receipt timeout in seconds")
	gasBump := flag.Int("gas-bump-percent", envOrInt("GAS_BUMP_PERCENT", cfg.GasBumpPercent), "Legacy gas price bump percent")
	slippageBps := flag.Int("slippage-bps", envOrInt("DEFAULT_SLIPPAGE_BPS", cfg.DefaultSlippageBps), "Default quote slippage in basis points")
	trailing := flag.Bool("trailing-stop", envOrBool("TRAILING_STOP_ENABLED", cfg.TrailingStopEnabled), "Enable trailing stop after TP2")
	trailingPct := flag.Int("trailing-retracement-pct", envOrInt("TRAILING_RETRACEMENT_PCT", cfg.TrailingRetracementPct), "Trailing drop threshold percent")
	tp1Pct := flag.Int("tp1-exit-percent", envOrInt("TP1_EXIT_PERCENT", cfg.TP1ExitPercent), "Portion of the position exited on TP1")
	baseSymbol := flag.String("base-symbol", envOr("BASE_SYMBOL", cfg.BaseSymbol), "Base stablecoin symbol")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", cfg.LogLevel), "Log level")
	logOutput := flag.String("log-output", envOr("LOG_OUTPUT", cfg.LogOutput), "Log output: console, file, both")

	flag.Parse()

	logger.Init(logger.Config{
		Level:      *logLevel,
		Output:     *logOutput,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	})
	log := logger.S()

	cfg.ListenAddr = *listenAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.PriceFeedURL = *priceFeedURL
	cfg.PriceStreamURL = *priceStreamURL
	cfg.AggregatorURL = *aggregatorURL
	cfg.RegistryURL = *registryURL
	cfg.ListingIndexURL = *listingURL
	cfg.DirectoryURL = *directoryURL
	cfg.PositionPercentage = *positionPct
	cfg.MonitorTickSeconds = *monitorTick
	cfg.ExecutorFanOut = *fanOut
	cfg.ReceiptWaitSeconds = *receiptWait
	cfg.GasBumpPercent = *gasBump
	cfg.DefaultSlippageBps = *slippageBps
	cfg.TrailingStopEnabled = *trailing
	cfg.TrailingRetracementPct = *trailingPct
	cfg.TP1ExitPercent = *tp1Pct
	cfg.BaseSymbol = *baseSymbol
	cfg.SignerKey = os.Getenv("SIGNER_KEY")
	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN
	if *kafkaBrokers != "" {
		cfg.KafkaBrokers = strings.Split(*kafkaBrokers, ",")
	}

	var err error
	cfg.RPCEndpoints, err = config.ParseRPCEndpoints(*rpcEndpoints)
	if err != nil {
		log.Fatalf("parse rpc endpoints: %v", err)
	}
	cfg.PermitContracts, err = config.ParsePermitContracts(*permits)
	if err != nil {
		log.Fatalf("parse permit contracts: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}
	if cfg.PriceFeedURL == "" || cfg.AggregatorURL == "" || cfg.DirectoryURL == "" {
		log.Fatal("--price-feed-url, --aggregator-url and --directory-url are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// RPC providers per network
	providers := evm.NewProviders()
	for network, endpoint := range cfg.RPCEndpoints {
		providers.Register(evm.NetworkKey(network), evm.NewHTTPClient(endpoint))
		log.Infow("registered RPC provider", "network", network)
	}

	// Event bus: always the in-process bus for the journal; Kafka is
	// layered on when brokers are configured.
	memBus := bus.NewMemoryBus()
	var publisher bus.Publisher = memBus
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := bus.NewKafkaPublisher(cfg.KafkaBrokers, "trader", log)
		defer kafkaPub.Close()
		publisher = bus.Multi{memBus, kafkaPub}
		log.Infow("kafka publisher enabled", "brokers", cfg.KafkaBrokers)
	}

	// Journal stores
	var tradeStore journal.TradeStore
	var exitStore journal.ExitStore
	var tickStore journal.TickStore
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		tradeStore = pgstore.NewTradeStore(pool)
		exitStore = pgstore.NewExitStore(pool)
	} else {
		tradeStore = memory.NewTradeStore()
		exitStore = memory.NewExitStore()
	}
	if cfg.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			log.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		tickStore = chstore.NewTickStore(conn)
	} else {
		tickStore = memory.NewTickStore()
	}

	recorder := journal.NewRecorder(journal.RecorderOptions{
		Trades: tradeStore,
		Exits:  exitStore,
		Ticks:  tickStore,
		Logger: log,
	})
	go recorder.Run(ctx, memBus.Subscribe())

	// Price feed: HTTP, optionally fronted by the WebSocket stream.
	var feed pricing.PriceFeed = pricing.NewHTTPFeed(cfg.PriceFeedURL)
	if cfg.PriceStreamURL != "" {
		stream, err := pricing.NewStreamFeed(ctx, cfg.PriceStreamURL, feed, nil)
		if err != nil {
			log.Warnw("price stream unavailable, polling only", "error", err)
		} else {
			defer stream.Close()
			feed = stream
		}
	}

	// Token resolver
	resolver, err := registry.NewResolver(registry.ResolverOptions{
		Builtin:      registry.NewBuiltinSource(registry.DefaultBuiltinBindings()),
		Registry:     maybeSource(cfg.RegistryURL, func(u string) registry.Source { return registry.NewMetadataRegistry(u) }),
		ListingIndex: maybeSource(cfg.ListingIndexURL, func(u string) registry.Source { return registry.NewListingIndex(u, 10_000) }),
		Logger:       log,
	})
	if err != nil {
		log.Fatalf("create resolver: %v", err)
	}

	// Wallet machinery
	safes := wallet.NewFactory(providers, cfg.SignerKey)
	validator, err := wallet.NewValidator(providers, safes, log)
	if err != nil {
		log.Fatalf("create validator: %v", err)
	}

	sizer := sizing.NewSizer(providers, sizing.Config{
		MaxPercent:    cfg.MaxPositionPercentage,
		GasReserveRaw: cfg.NativeGasReserveRaw,
		MinUsdCents:   cfg.MinUsdCents,
	}, log)

	routes := aggregator.NewHTTPProvider(cfg.AggregatorURL)

	allowances := allowance.NewManager(allowance.Options{
		Providers:   providers,
		Safes:       safes,
		Permits:     cfg.PermitContracts,
		ReceiptWait: time.Duration(cfg.ReceiptWaitSeconds) * time.Second,
		GasBumpPct:  cfg.GasBumpPercent,
		Logger:      log,
	})

	exec := executor.New(executor.Options{
		Providers:   providers,
		Safes:       safes,
		Routes:      routes,
		Allowances:  allowances,
		Invalidator: validator,
		SlippageBps: cfg.DefaultSlippageBps,
		GasBumpPct:  cfg.GasBumpPercent,
		ReceiptWait: time.Duration(cfg.ReceiptWaitSeconds) * time.Second,
		Logger:      log,
	})

	mon := monitor.New(monitor.Options{
		Feed:       feed,
		TickPeriod: time.Duration(cfg.MonitorTickSeconds) * time.Second,
		Publisher:  publisher,
		Logger:     log,
	})

	orch := orchestrator.New(orchestrator.Options{
		Directory: directory.NewHTTPDirectory(cfg.DirectoryURL),
		Resolver:  resolver,
		Validator: validator,
		Sizer:     sizer,
		Routes:    routes,
		Executor:  exec,
		Monitor:   mon,
		Publisher: publisher,
		Flow:      flow.NewTracker(log),
		Logger:    log,
		Config: orchestrator.Config{
			BaseSymbol:             cfg.BaseSymbol,
			PositionPercent:        cfg.PositionPercentage,
			FanOut:                 cfg.ExecutorFanOut,
			TP1ExitPercent:         cfg.TP1ExitPercent,
			TrailingEnabled:        cfg.TrailingStopEnabled,
			TrailingRetracementPct: decimal.NewFromInt(int64(cfg.TrailingRetracementPct)),
		},
	})

	// HTTP surfaces
	api := ingress.NewServer(orch, log)
	go func() {
		log.Infow("signal ingress listening", "addr", cfg.ListenAddr)
		if err := api.R.Run(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Errorw("ingress server error", "error", err)
		}
	}()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		log.Infow("metrics listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server error", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("received signal, initiating graceful shutdown", "signal", sig)
		cancel()

		select {
		case sig := <-sigCh:
			log.Errorw("received second signal, forcing immediate shutdown", "signal", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	go func() {
		if err := mon.Run(ctx); err != nil && err != context.Canceled {
			log.Errorw("monitor error", "error", err)
		}
	}()

	log.Info("orchestrator started")
	if err := orch.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("orchestrator error: %v", err)
	}
	log.Info("shutdown complete")
}

// maybeSource builds an optional registry source.
func maybeSource(url string, build func(string) registry.Source) registry.Source {
	if url == "" {
		return nil
	}
	return build(url)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
