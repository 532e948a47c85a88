package pipeline

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Watchlist []string `envconfig:"WATCHLIST" default:"ASML.AS,ADYEN.AS,INGA.AS,PHIA.AS,BESI.AS,SAP.DE,SIE.DE,BMW.DE,MC.PA,AIR.PA"`

	LoopPeriod    time.Duration `envconfig:"PIPELINE_LOOP_PERIOD" default:"30m"`
	LookbackHours time.Duration `envconfig:"NEWS_LOOKBACK" default:"4h"`
	CooldownHours time.Duration `envconfig:"SIGNAL_COOLDOWN" default:"4h"`
	SignalTTL     time.Duration `envconfig:"SIGNAL_TTL" default:"2h"`

	ConfidenceThreshold int `envconfig:"CONFIDENCE_THRESHOLD" default:"70"`
	MinMateriality      int `envconfig:"MIN_MATERIALITY" default:"7"`

	MinSameSideItems int     `envconfig:"MIN_SAME_SIDE_ITEMS" default:"2"`
	FeePerShare      float64 `envconfig:"FEE_PER_SHARE" default:"0.01"`
	MaxHeadlines     int     `envconfig:"MAX_HEADLINES" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
