package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"holders-backend/internal/broadcaster"
	"holders-backend/internal/cadence"
	"holders-backend/internal/history"
	"holders-backend/internal/pipeline"
	"holders-backend/internal/rpc"
	"holders-backend/internal/server"
)

// Config holds all application configuration
type Config struct {
	Log         LogConfig          `json:"log" yaml:"log"`
	RPC         rpc.Config         `json:"rpc" yaml:"rpc"`
	Pipeline    pipeline.Config    `json:"pipeline" yaml:"pipeline"`
	Broadcaster broadcaster.Config `json:"broadcaster" yaml:"broadcaster"`
	Server      server.Config      `json:"server" yaml:"server"`
	History     history.Config     `json:"history" yaml:"history"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" yaml:"level"` // DEBUG, INFO, WARN or ERROR
}

// DefaultConfig returns default configuration for the entire application
func DefaultConfig() Config {
	return Config{
		Log:         LogConfig{Level: "INFO"},
		RPC:         rpc.DefaultConfig(),
		Pipeline:    pipeline.DefaultConfig(),
		Broadcaster: broadcaster.DefaultConfig(),
		Server:      server.DefaultConfig(),
		History:     history.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func applyEnv(cfg *Config) {
	if v := os.Getenv("HELIUS_API_KEY"); v != "" {
		cfg.RPC.APIKey = v
	}
	if v := os.Getenv("HELIUS_RPC_URL"); v != "" {
		cfg.RPC.Endpoint = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if !strings.Contains(v, ":") {
			v = ":" + v
		}
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TOKEN_MINT"); v != "" {
		cfg.Pipeline.Subject = v
	}
	if v := os.Getenv("HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.History.Redis.Addr = v
	}
	if v := os.Getenv("HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if !cadence.IsOption(c.Pipeline.Scheduler.Cadence) {
		return fmt.Errorf("unsupported cadence: %q", c.Pipeline.Scheduler.Cadence)
	}
	if c.Pipeline.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative: %d", c.Pipeline.Capacity)
	}
	switch c.History.Backend {
	case "", history.BackendMemory, history.BackendRedis, history.BackendSQLite, history.BackendPostgres:
	default:
		return fmt.Errorf("unknown history backend: %q", c.History.Backend)
	}
	return nil
}
