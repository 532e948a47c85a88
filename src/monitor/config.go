package monitor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Interval    time.Duration `envconfig:"MONITOR_INTERVAL" default:"60s"`
	MaxHolding  time.Duration `envconfig:"MAX_HOLDING" default:"6h"`
	CloseBuffer time.Duration `envconfig:"MONITOR_CLOSE_BUFFER" default:"5m"`
	FeePerShare float64       `envconfig:"FEE_PER_SHARE" default:"0.01"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
