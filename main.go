package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"

	"newstrader/src/connectors"
	"newstrader/src/database"
	"newstrader/src/handler"
	"newstrader/src/pipeline"
	"newstrader/src/repository"
	"newstrader/src/risk"
	"newstrader/src/security"
	"newstrader/src/server"
)

func SetupLogger() {
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

func main() {
	_ = godotenv.Load()
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	riskCfg := risk.GetConfig()
	session, err := risk.NewSession(riskCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build market session")
	}

	connCfg := connectors.GetConfig()
	apiKey, apiSecret := brokerCredentials(connCfg)
	broker := connectors.NewBrokerClient(connCfg, apiKey, apiSecret)

	pipeCfg := pipeline.GetConfig()
	stream := connectors.NewQuoteStream(connCfg, pipeCfg.Watchlist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Quote stream stopped")
		}
	}()

	signalRepo := repository.NewSignalRepository()
	tradeRepo := repository.NewTradeRepository()
	portfolioRepo := repository.NewPortfolioRepository()

	engine := risk.NewEngine(riskCfg, session, signalRepo, tradeRepo, broker, stream)
	pipe := pipeline.New(pipeCfg, session, signalRepo, tradeRepo,
		connectors.NewNewsClient(connCfg), stream, broker, connectors.NewReasonerClient(connCfg), engine)

	handlerCfg := handler.GetConfig()
	serverCfg := server.GetConfig()

	server.StartServer(serverCfg.Port, func(r chi.Router) {
		r.Post("/webhook/prediction", handler.PredictionWebhookHandler(handlerCfg, signalRepo, stream, engine, pipe))
		r.Get("/webhook/test", handler.WebhookTestHandler())
		r.Get("/signals/latest", handler.DefaultLatestSignalsHandler())
		r.Get("/trades/latest", handler.DefaultLatestTradesHandler())
		r.Get("/portfolio/today", handler.PortfolioTodayHandler(portfolioRepo, session.Location()))
	})
}

// brokerCredentials returns the broker keys, decrypting them when a
// credentials key is configured.
func brokerCredentials(cfg connectors.Config) (string, string) {
	if security.GetConfig().BrokerCRKey == "" {
		return cfg.BrokerAPIKey, cfg.BrokerAPISecret
	}

	apiKey, err := security.DecryptString(cfg.BrokerAPIKey)
	if err != nil {
		logger.WithError(err).Fatal("Failed to decrypt broker API key")
	}
	apiSecret, err := security.DecryptString(cfg.BrokerAPISecret)
	if err != nil {
		logger.WithError(err).Fatal("Failed to decrypt broker API secret")
	}
	return apiKey, apiSecret
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error("Application panic")
	}
}
