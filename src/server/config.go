package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config drives the query API listener.
type Config struct {
	Port              string        `envconfig:"PORT" default:"9898"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	// in-flight requests get this long to finish on SIGINT or SIGTERM
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`
}

func (c *Config) addr() string {
	return ":" + c.Port
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
