// Package config loads server configuration from environment variables.
//
// Every knob has a sensible default so `go run ./cmd/server` works with no
// environment at all. Struct tags drive the parsing — the env library reads
// the `env:` tag for the variable name and `envDefault:` for the fallback.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting the server reads at startup.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/snipetag.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SweepInterval controls how often the janitor scans for pending snipes
	// that outlived the dodge window. Clients may also resolve them directly.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
