package example

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the YAML configuration for the demo server.
	Config struct {
		// HTTP is the listen address, for example ":8080".
		HTTP string `yaml:"http"`

		// Provider selects the model backend: "openai" or "anthropic".
		Provider string `yaml:"provider"`

		// Model is the provider model identifier.
		Model string `yaml:"model"`

		// APIKeyEnv names the environment variable holding the provider API
		// key. Defaults per provider (OPENAI_API_KEY, ANTHROPIC_API_KEY).
		APIKeyEnv string `yaml:"api_key_env"`

		// RateLimitTPM is the initial tokens-per-minute budget for the
		// adaptive provider rate limiter. Zero disables rate limiting.
		RateLimitTPM float64 `yaml:"rate_limit_tpm"`

		// Loop tunes the tool loop.
		Loop LoopConfig `yaml:"loop"`

		// Deadline caps the wall-clock duration of one run. Zero disables it.
		Deadline time.Duration `yaml:"deadline"`

		// Redis configures the optional Redis artifact store. An empty Addr
		// selects the in-memory store.
		Redis RedisConfig `yaml:"redis"`

		// ArtifactTTL is the artifact store TTL. Zero selects the store
		// default.
		ArtifactTTL time.Duration `yaml:"artifact_ttl"`
	}

	// LoopConfig tunes the tool loop.
	LoopConfig struct {
		// MaxIterations caps model round trips per run.
		MaxIterations int `yaml:"max_iterations"`
		// ContainerKind is the component kind synthesized to wrap multiple
		// roots.
		ContainerKind string `yaml:"container_kind"`
	}

	// RedisConfig locates the optional Redis server.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}
)

// LoadConfig reads and validates a YAML configuration file. A missing path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		HTTP:     ":8080",
		Provider: "openai",
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	switch cfg.Provider {
	case "openai":
		if cfg.APIKeyEnv == "" {
			cfg.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
	case "anthropic":
		if cfg.APIKeyEnv == "" {
			cfg.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or anthropic)", cfg.Provider)
	}
	return cfg, nil
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.APIKeyEnv)
	}
	return key, nil
}
