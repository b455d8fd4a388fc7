// Package config loads and validates the server's runtime configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every knob the server needs at startup.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if unset
type Config struct {
	// Network
	ListenAddr     string `env:"VS_LISTEN_ADDR" envDefault:":9090"`
	MaxConnections int    `env:"VS_MAX_CONNECTIONS" envDefault:"2000"`

	// Packet pipeline
	RecvBufferSize   int `env:"VS_RECV_BUFFER_SIZE" envDefault:"65536"`
	DispatcherQueue  int `env:"VS_DISPATCHER_QUEUE_SIZE" envDefault:"4096"`
	RateLimitBurst   int `env:"VS_RATE_LIMIT_BURST" envDefault:"100"`
	RateLimitPerSec  int `env:"VS_RATE_LIMIT_REFILL" envDefault:"50"`

	// Persistence
	DBPath     string `env:"VS_DB_PATH" envDefault:"vsurv.db"`
	DBPoolSize int    `env:"VS_DB_POOL_SIZE" envDefault:"4"`

	// Messaging
	NATSURL  string `env:"VS_NATS_URL" envDefault:"nats://localhost:4222"`
	RedisURL string `env:"VS_REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Resource thresholds (container-aware; see internal/resourceguard)
	CPURejectThreshold float64       `env:"VS_CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64       `env:"VS_CPU_PAUSE_THRESHOLD" envDefault:"85.0"`
	MetricsInterval    time.Duration `env:"VS_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"VS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"VS_LOG_FORMAT" envDefault:"json"`

	// Environment toggles debug-vs-release error policy (§7: Logic errors
	// abort in debug, skip-and-continue in release).
	Environment string `env:"VS_ENVIRONMENT" envDefault:"production"`
}

// Load reads configuration from an optional .env file and the process
// environment. ENV vars always win over .env file values.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("VS_LISTEN_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("VS_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.DBPoolSize < 1 {
		return fmt.Errorf("VS_DB_POOL_SIZE must be > 0, got %d", c.DBPoolSize)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("VS_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("VS_CPU_PAUSE_THRESHOLD must be 0-100, got %.1f", c.CPUPauseThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("VS_CPU_PAUSE_THRESHOLD (%.1f) must be >= VS_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("VS_LOG_LEVEL must be one of debug,info,warn,error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("VS_LOG_FORMAT must be one of json,pretty (got %q)", c.LogFormat)
	}
	return nil
}

// Print writes a human-readable dump of the configuration to stdout.
func (c *Config) Print() {
	fmt.Println("=== vsurv server configuration ===")
	fmt.Printf("Environment:        %s\n", c.Environment)
	fmt.Printf("Listen:             %s\n", c.ListenAddr)
	fmt.Printf("Max connections:    %d\n", c.MaxConnections)
	fmt.Printf("DB path:            %s (pool=%d)\n", c.DBPath, c.DBPoolSize)
	fmt.Printf("NATS URL:           %s\n", c.NATSURL)
	fmt.Printf("Redis URL:          %s\n", c.RedisURL)
	fmt.Printf("CPU reject/pause:   %.1f%% / %.1f%%\n", c.CPURejectThreshold, c.CPUPauseThreshold)
	fmt.Printf("Log level/format:   %s/%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("===================================")
}

// LogConfig emits the configuration as structured fields.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("listen_addr", c.ListenAddr).
		Int("max_connections", c.MaxConnections).
		Str("db_path", c.DBPath).
		Int("db_pool_size", c.DBPoolSize).
		Str("nats_url", c.NATSURL).
		Str("redis_url", c.RedisURL).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Msg("configuration loaded")
}
