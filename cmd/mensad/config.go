package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, read from MENSA_* environment
// variables. Flags override individual fields.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"MENSA_ADDR" envDefault:":8080"`

	// Driver selects the storage backend: memory, sqlite or mongo.
	Driver string `env:"MENSA_DRIVER" envDefault:"sqlite"`

	// DSN is the sqlite file path or the mongo connection URI.
	DSN string `env:"MENSA_DSN" envDefault:"mensa.db"`

	// MongoDatabase is the database name for the mongo driver.
	MongoDatabase string `env:"MENSA_MONGO_DB" envDefault:"mensa"`

	// MinPeriodDays is the minimum valid-day span for free-meal periods.
	MinPeriodDays int `env:"MENSA_MIN_PERIOD_DAYS" envDefault:"5"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `env:"MENSA_METRICS" envDefault:"true"`

	// LogReceipts writes receipts to the log instead of discarding them.
	// A real deployment replaces this with an SMTP notifier.
	LogReceipts bool `env:"MENSA_LOG_RECEIPTS" envDefault:"true"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"MENSA_LOG_LEVEL" envDefault:"info"`
}

// loadConfig reads the configuration from the environment.
func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("mensad: parse environment: %w", err)
	}

	return cfg, nil
}
