// Package config loads server configuration from defaults, an optional
// YAML file, and APPLICATOR_-prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the applicatord server configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// MaxConcurrentJobs is the admission ceiling: at most this many jobs
	// run at any instant. Not mutable at runtime.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`

	// APIToken protects the /api routes when set; empty disables auth.
	APIToken string `mapstructure:"api_token"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// ShutdownGrace bounds how long shutdown waits for running sessions to
	// observe cancellation and unwind.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Load reads configuration, optionally from the YAML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("max_concurrent_jobs", 2)
	v.SetDefault("api_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("shutdown_grace", 30*time.Second)

	v.SetEnvPrefix("APPLICATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot start
// with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be in valid range")
	}

	if c.MaxConcurrentJobs < 1 {
		return errors.New("max_concurrent_jobs must be >= 1")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}

	if c.ShutdownGrace <= 0 {
		return errors.New("shutdown_grace must be positive")
	}

	return nil
}

// ListenAddr returns the host:port to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
