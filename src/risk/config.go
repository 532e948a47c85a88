package risk

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxTradesPerDay      int     `envconfig:"MAX_TRADES_PER_DAY" default:"3"`
	MaxRiskPerTrade      float64 `envconfig:"MAX_RISK_PER_TRADE" default:"0.02"`
	MaxDailyLoss         float64 `envconfig:"MAX_DAILY_LOSS" default:"0.05"`
	MaxConsecutiveLosses int     `envconfig:"MAX_CONSECUTIVE_LOSSES" default:"3"`
	MaxSpreadFraction    float64 `envconfig:"MAX_SPREAD_FRACTION" default:"0.005"`

	StartingCapital    float64 `envconfig:"STARTING_CAPITAL" default:"2000"`
	MinCapitalPerTrade float64 `envconfig:"MIN_CAPITAL_PER_TRADE" default:"100"`
	FallbackMaxShares  int     `envconfig:"FALLBACK_MAX_SHARES" default:"100"`

	MarketOpenHour    int           `envconfig:"MARKET_OPEN_HOUR" default:"9"`
	MarketOpenMinute  int           `envconfig:"MARKET_OPEN_MINUTE" default:"0"`
	MarketCloseHour   int           `envconfig:"MARKET_CLOSE_HOUR" default:"17"`
	MarketCloseMinute int           `envconfig:"MARKET_CLOSE_MINUTE" default:"30"`
	MarketTimezone    string        `envconfig:"MARKET_TIMEZONE" default:"Europe/Amsterdam"`
	OpenBuffer        time.Duration `envconfig:"MARKET_OPEN_BUFFER" default:"15m"`
	CloseBuffer       time.Duration `envconfig:"MARKET_CLOSE_BUFFER" default:"15m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
