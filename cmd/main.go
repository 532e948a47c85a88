package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"newstrader/src/connectors"
	"newstrader/src/database"
	"newstrader/src/monitor"
	"newstrader/src/pipeline"
	"newstrader/src/portfolio"
	"newstrader/src/repository"
	"newstrader/src/risk"
	"newstrader/src/security"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "newstrader CMD"
	app.Usage = "The newstrader command line interface"

	app.Commands = []cli.Command{
		pipelineCMD,
		monitorCMD,
		rollupCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	pipelineCMD = cli.Command{
		Name:        "pipeline",
		Usage:       "run the signal pipeline loop",
		Action:      pipelineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Scan the watchlist for news, analyze and execute approved signals`,
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the position monitor loop",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Watch open positions and close them on exit conditions`,
	}
	rollupCMD = cli.Command{
		Name:        "rollup",
		Usage:       "run the daily performance rollup",
		Action:      rollupAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Recompute today's performance snapshot from closed trades`,
	}
)

func setupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

// stack holds the shared wiring every command builds on.
type stack struct {
	session       *risk.Session
	signalRepo    *repository.SignalRepository
	tradeRepo     *repository.TradeRepository
	portfolioRepo *repository.PortfolioRepository
	broker        *connectors.BrokerClient
	stream        *connectors.QuoteStream
	engine        *risk.Engine
	pipeCfg       pipeline.Config
	connCfg       connectors.Config
}

func buildStack() (*stack, error) {
	_ = godotenv.Load()
	setupLogger()

	if err := database.InitMainDB(); err != nil {
		return nil, err
	}

	riskCfg := risk.GetConfig()
	session, err := risk.NewSession(riskCfg)
	if err != nil {
		return nil, err
	}

	connCfg := connectors.GetConfig()
	apiKey, apiSecret, err := brokerCredentials(connCfg)
	if err != nil {
		return nil, err
	}

	pipeCfg := pipeline.GetConfig()

	st := &stack{
		session:       session,
		signalRepo:    repository.NewSignalRepository(),
		tradeRepo:     repository.NewTradeRepository(),
		portfolioRepo: repository.NewPortfolioRepository(),
		broker:        connectors.NewBrokerClient(connCfg, apiKey, apiSecret),
		stream:        connectors.NewQuoteStream(connCfg, pipeCfg.Watchlist),
		pipeCfg:       pipeCfg,
		connCfg:       connCfg,
	}
	st.engine = risk.NewEngine(riskCfg, session, st.signalRepo, st.tradeRepo, st.broker, st.stream)
	return st, nil
}

func brokerCredentials(cfg connectors.Config) (string, string, error) {
	if security.GetConfig().BrokerCRKey == "" {
		return cfg.BrokerAPIKey, cfg.BrokerAPISecret, nil
	}

	apiKey, err := security.DecryptString(cfg.BrokerAPIKey)
	if err != nil {
		return "", "", fmt.Errorf("decrypt broker API key: %w", err)
	}
	apiSecret, err := security.DecryptString(cfg.BrokerAPISecret)
	if err != nil {
		return "", "", fmt.Errorf("decrypt broker API secret: %w", err)
	}
	return apiKey, apiSecret, nil
}

func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func pipelineAction(_ *cli.Context) error {
	logger.Info("Starting pipeline CMD")

	st, err := buildStack()
	if err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}

	ctx, stop := runContext()
	defer stop()

	go func() {
		if err := st.stream.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Quote stream stopped")
		}
	}()

	pipe := pipeline.New(st.pipeCfg, st.session, st.signalRepo, st.tradeRepo,
		connectors.NewNewsClient(st.connCfg), st.stream, st.broker,
		connectors.NewReasonerClient(st.connCfg), st.engine)
	pipe.StartLoop(ctx)

	return nil
}

func monitorAction(_ *cli.Context) error {
	logger.Info("Starting monitor CMD")

	st, err := buildStack()
	if err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}

	ctx, stop := runContext()
	defer stop()

	go func() {
		if err := st.stream.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Quote stream stopped")
		}
	}()

	monitor.New(monitor.GetConfig(), st.session, st.tradeRepo, st.stream, st.broker).StartLoop(ctx)

	return nil
}

func rollupAction(_ *cli.Context) error {
	logger.Info("Starting rollup CMD")

	st, err := buildStack()
	if err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}

	acct := portfolio.NewAccountant(portfolio.GetConfig(), st.session, st.tradeRepo, st.portfolioRepo)
	snapshot, err := acct.Rollup(context.Background(), time.Now())
	if err != nil {
		logger.WithError(err).Error("Rollup failed")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"date":   snapshot.Date.Format("2006-01-02"),
		"trades": snapshot.TotalTrades,
		"pnl":    snapshot.DailyPnl,
	}).Info("Rollup finished")

	return nil
}
