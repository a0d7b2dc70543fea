package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
)

// PoolConfig holds the fixed-window settings for one admission pool
type PoolConfig struct {
	Points        int `json:"points"`
	WindowSeconds int `json:"window_seconds"`
	BlockSeconds  int `json:"block_seconds"`
}

// RateLimitConfig holds the settings for the three admission pools
type RateLimitConfig struct {
	General PoolConfig `json:"general"`
	AI      PoolConfig `json:"ai"`
	Code    PoolConfig `json:"code"`
}

// AnthropicConfig holds Anthropic API configuration
type AnthropicConfig struct {
	APIKey string `json:"api_key" env:"RELAIS_ANTHROPIC_API_KEY"`
	Model  string `json:"model"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey string `json:"api_key" env:"RELAIS_OPENAI_API_KEY"`
	Model  string `json:"model"`
}

// Config represents application configuration
type Config struct {
	ListenAddr           string          `json:"listen_addr" env:"RELAIS_LISTEN_ADDR"`
	DBPath               string          `json:"db_path" env:"RELAIS_DB_PATH"`
	LogLevel             string          `json:"log_level" env:"RELAIS_LOG_LEVEL"` // debug, info, warn, error, none
	LogPath              string          `json:"log_path" env:"RELAIS_LOG_PATH"`
	IdleTimeoutSeconds   int             `json:"idle_timeout_seconds"`
	SweepIntervalSeconds int             `json:"sweep_interval_seconds"`
	ValidateSessions     bool            `json:"validate_sessions"`
	RateLimit            RateLimitConfig `json:"rate_limit"`
	Anthropic            AnthropicConfig `json:"anthropic"`
	OpenAI               OpenAIConfig    `json:"openai"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "relais")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "relais")
	default:
		if cfgHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); cfgHome != "" {
			return filepath.Join(cfgHome, "relais")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "relais")
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// Default returns a Config populated with default values. The pool
// settings mirror the product's published limits: general 100/60s with a
// 60s block, AI completion 20/60s with a 120s block, code execution
// 10/60s with a 300s block.
func Default() *Config {
	return &Config{
		ListenAddr:           "localhost:5000",
		DBPath:               filepath.Join(defaultConfigDir(), "relais.db"),
		LogLevel:             "info",
		IdleTimeoutSeconds:   30 * 60,
		SweepIntervalSeconds: 5 * 60,
		RateLimit: RateLimitConfig{
			General: PoolConfig{Points: 100, WindowSeconds: 60, BlockSeconds: 60},
			AI:      PoolConfig{Points: 20, WindowSeconds: 60, BlockSeconds: 120},
			Code:    PoolConfig{Points: 10, WindowSeconds: 60, BlockSeconds: 300},
		},
		Anthropic: AnthropicConfig{Model: "claude-3-5-sonnet-20241022"},
		OpenAI:    OpenAIConfig{Model: "gpt-4"},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First run, defaults apply
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path as indented JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("idle_timeout_seconds must be positive, got %d", c.IdleTimeoutSeconds)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive, got %d", c.SweepIntervalSeconds)
	}
	for name, pool := range map[string]PoolConfig{
		"general": c.RateLimit.General,
		"ai":      c.RateLimit.AI,
		"code":    c.RateLimit.Code,
	} {
		if pool.Points <= 0 || pool.WindowSeconds <= 0 || pool.BlockSeconds <= 0 {
			return fmt.Errorf("rate_limit.%s must have positive points, window and block", name)
		}
	}
	return nil
}
