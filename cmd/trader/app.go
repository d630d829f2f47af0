package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gregtusar/gswap-trader/internal/config"
	"github.com/gregtusar/gswap-trader/pkg/coinbase"
	"github.com/gregtusar/gswap-trader/pkg/coingecko"
	"github.com/gregtusar/gswap-trader/pkg/gswap"
	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/gregtusar/gswap-trader/pkg/trader"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type app struct {
	feed     trader.PriceFeed
	engine   *trader.SignalEngine
	executor *trader.Executor
	events   *gswap.EventSocket
}

func (a *app) Close() {
	if a.events != nil {
		_ = a.events.Close()
	}
}

func build(ctx context.Context, cfg *config.Config, session *trader.Session, logger *logrus.Logger, forceSimulated bool) (*app, error) {
	feed, err := buildFeed(cfg, logger)
	if err != nil {
		return nil, err
	}
	executor, events, err := buildExecutor(ctx, cfg, session, logger, forceSimulated)
	if err != nil {
		return nil, err
	}
	return &app{
		feed:     feed,
		engine:   trader.NewSignalEngine(cfg.Trading.MinTradeSize, cfg.Trading.MaxTradeSize),
		executor: executor,
		events:   events,
	}, nil
}

func buildFeed(cfg *config.Config, logger *logrus.Logger) (trader.PriceFeed, error) {
	switch cfg.PriceFeed.Source {
	case "", coingecko.SourceName:
		cg := cfg.PriceFeed.CoinGecko
		return coingecko.NewClient(cg.BaseURL, cg.CoinID, cg.VsCurrency, cg.APIKey, cfg.PriceFeed.Timeout, cg.RequestsPerMinute), nil
	case coinbase.SourceName:
		var key *coinbase.CDPKey
		if cfg.Coinbase.APIKeyName != "" && cfg.Coinbase.PrivateKeyPEM != "" {
			parsed, err := coinbase.ParseCDPKey(cfg.Coinbase.APIKeyName, cfg.Coinbase.PrivateKeyPEM)
			if err != nil {
				logger.WithError(err).Warn("Invalid Coinbase API key, using the public market endpoint")
			} else {
				key = parsed
			}
		}
		return coinbase.NewClient(cfg.Coinbase.BaseURL, cfg.Coinbase.ProductID, key, cfg.PriceFeed.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown price feed %q", cfg.PriceFeed.Source)
	}
}

func executorConfig(cfg *config.Config) trader.ExecutorConfig {
	retry := trader.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Trading.Retry.MaxAttempts
	retry.BaseDelay = cfg.Trading.Retry.BaseDelay

	return trader.ExecutorConfig{
		FeeRate:    cfg.Trading.FeeRate,
		Slippage:   trader.DefaultSlippageModel(),
		BaseToken:  cfg.Trading.BaseToken,
		QuoteToken: cfg.Trading.QuoteToken,
		Wallet:     gswap.NormalizeAddress(cfg.Wallet.Address),
		Retry:      retry,
	}
}

// buildExecutor makes the one simulated-or-real decision for the process.
func buildExecutor(ctx context.Context, cfg *config.Config, session *trader.Session, logger *logrus.Logger, forceSimulated bool) (*trader.Executor, *gswap.EventSocket, error) {
	execCfg := executorConfig(cfg)
	initialBase, initialQuote := cfg.Trading.InitialBase, cfg.Trading.InitialQuote

	simulated := func() *trader.Executor {
		return trader.NewSimulatedExecutor(trader.NewSimulatedBalance(initialBase, initialQuote), session, execCfg, logger)
	}

	mode := trader.ResolveMode(cfg.Wallet.Address, cfg.Wallet.PrivateKey, forceSimulated || cfg.Trading.SimulationMode)
	if mode == models.ModeSimulated {
		logger.Info("Running in simulation mode")
		return simulated(), nil, nil
	}

	signer, err := gswap.NewSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize wallet signer, falling back to simulation mode")
		return simulated(), nil, nil
	}
	if !gswap.SameAddress(signer.Address(), execCfg.Wallet) {
		logger.WithFields(logrus.Fields{
			"configured": execCfg.Wallet,
			"derived":    signer.Address(),
		}).Warn("Private key does not match the configured wallet address")
	}

	base, err := gswap.ParseTokenKey(cfg.Trading.BaseToken)
	if err != nil {
		return nil, nil, err
	}
	quote, err := gswap.ParseTokenKey(cfg.Trading.QuoteToken)
	if err != nil {
		return nil, nil, err
	}

	var events *gswap.EventSocket
	if cfg.GSwap.EventsURL != "" {
		events = gswap.NewEventSocket(cfg.GSwap.EventsURL, logger)
		if err := events.Connect(ctx); err != nil {
			logger.WithError(err).Warn("Bundler event socket unavailable, swaps will be reported as pending")
		}
	}

	client := gswap.NewClient(gswap.Config{
		GatewayURL:        cfg.GSwap.GatewayURL,
		BundlerURL:        cfg.GSwap.BundlerURL,
		Timeout:           cfg.GSwap.Timeout,
		RequestsPerSecond: cfg.GSwap.RequestsPerSecond,
		EventTimeout:      cfg.GSwap.EventTimeout,
	}, signer, events, logger)

	seed := models.NewBalance(initialBase, initialQuote, decimal.Zero)
	ledger := trader.NewRemoteBalance(client, execCfg.Wallet, base.Symbol(), quote.Symbol(), seed, cfg.Trading.BalanceCacheTTL, logger)

	logger.WithField("wallet", execCfg.Wallet).Info("Running in real trading mode")
	return trader.NewRealExecutor(ledger, client, session, execCfg, logger), events, nil
}

// configureLogger applies level, format and an optional file tee. The returned
// func closes the file.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) (func(), error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return func() {}, nil
	}
	file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(logger.Out, file))
	return func() { _ = file.Close() }, nil
}
