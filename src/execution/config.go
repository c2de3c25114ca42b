package execution

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ProtectivePriceCheck validates stop-loss and take-profit prices against
	// the current reference price before they are sent.
	ProtectivePriceCheck bool `envconfig:"PROTECTIVE_PRICE_CHECK" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
