package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	NewsBaseURL string        `envconfig:"NEWS_BASE_URL" default:"https://api.marketaux.com/v1"`
	NewsAPIKey  string        `envconfig:"NEWS_API_KEY"`
	NewsTimeout time.Duration `envconfig:"NEWS_TIMEOUT" default:"15s"`
	// Entity sentiment scores inside (-band, +band) read as neutral.
	NewsSentimentBand float64 `envconfig:"NEWS_SENTIMENT_BAND" default:"0.15"`

	BrokerBaseURL   string        `envconfig:"BROKER_BASE_URL" default:"https://paper-api.alpaca.markets"`
	BrokerAPIKey    string        `envconfig:"BROKER_API_KEY"`
	BrokerAPISecret string        `envconfig:"BROKER_API_SECRET"`
	BrokerTimeout   time.Duration `envconfig:"BROKER_TIMEOUT" default:"10s"`

	ReasonerBaseURL string        `envconfig:"REASONER_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	ReasonerAPIKey  string        `envconfig:"REASONER_API_KEY"`
	ReasonerModel   string        `envconfig:"REASONER_MODEL" default:"gemini-1.5-flash"`
	ReasonerTimeout time.Duration `envconfig:"REASONER_TIMEOUT" default:"30s"`

	StreamURL      string        `envconfig:"MARKETDATA_STREAM_URL" default:"wss://stream.data.example.com/v2/quotes"`
	QuoteMaxAge    time.Duration `envconfig:"QUOTE_MAX_AGE" default:"2m"`
	StreamRedialIn time.Duration `envconfig:"STREAM_REDIAL_INTERVAL" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
