package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// URL of the event-store server. The scheme picks the transport.
	URL string `env:"BEACON_URL,default=tcp://127.0.0.1:7363"`

	UserID    string `env:"BEACON_USER"`
	SecretKey string `env:"BEACON_KEY"`

	ConnectTimeoutSec int `env:"BEACON_CONNECT_TIMEOUT,default=5"`
	RequestTimeoutSec int `env:"BEACON_REQUEST_TIMEOUT,default=60"`
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
