package handler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// WebhookSecret signs inbound prediction payloads. Empty disables
	// signature verification; only do that locally.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	WebhookConfidenceDefault int           `envconfig:"WEBHOOK_CONFIDENCE_DEFAULT" default:"75"`
	WebhookMateriality       int           `envconfig:"WEBHOOK_MATERIALITY" default:"8"`
	WebhookSignalTTL         time.Duration `envconfig:"WEBHOOK_SIGNAL_TTL" default:"1h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
