package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ExchangeCRKey is the base64 encoded AES-256 key protecting venue credentials.
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY"`
	// OperatorTokenHash is the bcrypt hash of the bearer token guarding the query API.
	OperatorTokenHash string `envconfig:"OPERATOR_TOKEN_HASH"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
