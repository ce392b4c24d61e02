// Package config loads the YAML configuration shared by the zapuser and
// zapmaster daemons, with optional .env overrides for values operators
// commonly want to override per-deployment without editing the file.
// Grounded on teacher internal/node/config.go's
// DefaultConfig/LoadConfig/Save shape, and original_source/config/constants.json
// for the concrete field set (relay_url, mint_url, data_dir, tick_interval).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name, resolved relative to a
// project directory.
const ConfigFileName = "config.yaml"

// Config holds settings shared by every agent and the supervisor.
type Config struct {
	RelayURL            string `yaml:"relay_url"`
	MintURL             string `yaml:"mint_url"`
	DataDir             string `yaml:"data_dir"`
	TickIntervalSeconds int    `yaml:"tick_interval_seconds"`
	LogLevel            string `yaml:"log_level"`
}

// TickInterval returns the configured tick interval as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// DefaultConfig returns a Config with sensible defaults, matching
// original_source/config/constants.json's shape.
func DefaultConfig() *Config {
	return &Config{
		RelayURL:            "ws://127.0.0.1:7777",
		MintURL:             "http://127.0.0.1:3338",
		DataDir:             "data",
		TickIntervalSeconds: 60,
		LogLevel:            "info",
	}
}

// ConfigPath returns the full path to the config file under projectDir.
func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, ConfigFileName)
}

// Load reads configuration from <projectDir>/config.yaml, creating one
// with default values if absent, then applies .env overrides from
// <projectDir>/.env if present (ZAP_RELAY_URL, ZAP_MINT_URL, ZAP_DATA_DIR,
// ZAP_TICK_INTERVAL_SECONDS, ZAP_LOG_LEVEL).
func Load(projectDir string) (*Config, error) {
	path := ConfigPath(projectDir)

	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg, filepath.Join(projectDir, ".env"))
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, envFile string) {
	_ = godotenv.Load(envFile) // absent .env is not an error

	if v := os.Getenv("ZAP_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("ZAP_MINT_URL"); v != "" {
		cfg.MintURL = v
	}
	if v := os.Getenv("ZAP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ZAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ZAP_TICK_INTERVAL_SECONDS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.TickIntervalSeconds = n
		}
	}
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# Zap Empire configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
