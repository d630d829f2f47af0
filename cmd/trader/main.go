package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/gregtusar/gswap-trader/api"
	"github.com/gregtusar/gswap-trader/internal/config"
	"github.com/gregtusar/gswap-trader/pkg/metrics"
	"github.com/gregtusar/gswap-trader/pkg/trader"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile  string
	simulate bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gswap-trader",
		Short: "GALA/GUSDC trading bot for GalaSwap",
		Long:  `Polls the GALA price, derives a BUY/SELL/WAIT signal and trades it on GalaSwap or against a simulated ledger`,
		RunE:  runTrader,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "force simulated trading even when wallet credentials are set")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "signal",
		Short: "Fetch the price once and print the signal without trading",
		RunE:  runSignal,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTrader(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	closeLog, err := configureLogger(logger, cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := trader.NewSession()
	app, err := build(ctx, cfg, session, logger, simulate)
	if err != nil {
		return err
	}
	defer app.Close()

	runID := uuid.NewString()
	var journal *trader.Journal
	if cfg.Journal.Path != "" {
		journal, err = trader.NewJournal(cfg.Journal.Path, runID)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	recorder := metrics.New()
	galaTrader := trader.NewGalaTrader(
		trader.Config{
			CycleInterval:  cfg.Trading.CycleInterval,
			ErrorBackoff:   cfg.Trading.ErrorBackoff,
			TradingEnabled: cfg.Trading.Enabled,
		},
		app.feed,
		app.engine,
		app.executor,
		session,
		logger,
		trader.WithJournal(journal),
		trader.WithRecorder(recorder),
	)

	logger.WithFields(logrus.Fields{
		"run_id": runID,
		"mode":   app.executor.Mode(),
	}).Info("GalaSwap trader is running. Press Ctrl+C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return galaTrader.Run(gctx)
	})
	if cfg.Server.Enabled {
		apiServer := api.NewServer(galaTrader, recorder.Handler(), logger, cfg.Server.Port)
		g.Go(func() error {
			return apiServer.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		galaTrader.Stop()
		<-galaTrader.Done()
		return nil
	})

	err = g.Wait()
	galaTrader.Shutdown()
	logger.Info("GalaSwap trader stopped")
	return err
}

func runSignal(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load(cfgFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	closeLog, err := configureLogger(logger, cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	session := trader.NewSession()
	app, err := build(cmd.Context(), cfg, session, logger, simulate)
	if err != nil {
		return err
	}
	defer app.Close()

	dry := trader.NewGalaTrader(trader.Config{TradingEnabled: false}, app.feed, app.engine, app.executor, session, logger)
	report, err := dry.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	if report.Snapshot == nil {
		return fmt.Errorf("%w from %s", trader.ErrFeedUnavailable, app.feed.Name())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Mode     string      `json:"mode"`
		Trend    string      `json:"trend"`
		Snapshot interface{} `json:"snapshot"`
		Signal   interface{} `json:"signal"`
		Balance  interface{} `json:"balance"`
	}{
		Mode:     string(app.executor.Mode()),
		Trend:    string(report.Trend),
		Snapshot: report.Snapshot,
		Signal:   report.Signal,
		Balance:  report.Balance,
	})
}
