// Package config loads kelsen settings from the environment. Command-line
// flags override what is loaded here.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/kelsen/internal/ir"
)

// Config holds the settings shared by every command.
type Config struct {
	// DB is the journal path. ":memory:" keeps nothing.
	DB string `env:"KELSEN_DB" envDefault:"kelsen.db"`

	// Format selects command output: "text" or "json".
	Format string `env:"KELSEN_FORMAT" envDefault:"text"`

	// Owner owns the factory registry of a new journal.
	Owner ir.Principal `env:"KELSEN_OWNER"`

	LogLevel slog.Level `env:"KELSEN_LOG_LEVEL" envDefault:"WARN"`

	// MaxSteps bounds nested calls per top-level call.
	MaxSteps int `env:"KELSEN_MAX_STEPS" envDefault:"64"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values that the env tags cannot express.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.DB == "" {
		return fmt.Errorf("journal path must not be empty")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max steps must not be negative, got %d", c.MaxSteps)
	}
	return nil
}
