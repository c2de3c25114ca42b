package controller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MirrorMaxAttempts    int `envconfig:"MIRROR_MAX_ATTEMPTS" default:"3"`
	ExecutionMaxAttempts int `envconfig:"EXECUTION_MAX_ATTEMPTS" default:"3"`

	SweepLimit    int           `envconfig:"SWEEP_LIMIT" default:"10"`
	SweepLookback time.Duration `envconfig:"SWEEP_LOOKBACK" default:"1h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
