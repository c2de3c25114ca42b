package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceFuturesBaseURL string        `envconfig:"BINANCE_FUTURES_BASE_URL" default:"https://fapi.binance.com"`
	BinanceSpotBaseURL    string        `envconfig:"BINANCE_SPOT_BASE_URL" default:"https://api.binance.com"`
	BinanceRecvWindow     int           `envconfig:"BINANCE_RECV_WINDOW" default:"5000"`
	BinanceTimeout        time.Duration `envconfig:"BINANCE_TIMEOUT" default:"10s"`
	BinanceTimeOffsetTTL  time.Duration `envconfig:"BINANCE_TIME_OFFSET_TTL" default:"60s"`

	// Signed requests per second allowed for a single account.
	BinanceRequestsPerSecond float64 `envconfig:"BINANCE_REQUESTS_PER_SECOND" default:"5"`

	ReferencePriceBaseURL string `envconfig:"REFERENCE_PRICE_BASE_URL" default:"https://api.binance.com"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
