// Package config contains the service configuration loading logic.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the cashback service settings. It is built once at
// startup and passed to every component that needs it.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	ExternalCashbackAPI string        `env:"EXTERNAL_CASHBACK_API"`
	ExternalTimeout     time.Duration `env:"EXTERNAL_CASHBACK_TIMEOUT" envDefault:"5s"`
	TokenSecret         string        `env:"TOKEN_SECRET"`
	TokenTTL            time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

// Parse reads the configuration from command line flags and
// environment variables; environment values win.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCashbackAPI := cfg.ExternalCashbackAPI
	envTokenSecret := cfg.TokenSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ExternalCashbackAPI, "c", "", "external cashback service URL")
	flag.StringVar(&cfg.TokenSecret, "s", "cashback-secret", "JWT signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCashbackAPI != "" {
		cfg.ExternalCashbackAPI = envCashbackAPI
	}
	if envTokenSecret != "" {
		cfg.TokenSecret = envTokenSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
