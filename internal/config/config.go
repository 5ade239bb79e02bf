package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the arbitrage scanner.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Feed    FeedConfig    `yaml:"feed"`
	Trade   TradeConfig   `yaml:"trade"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
}

type FeedConfig struct {
	Source           string  `yaml:"source"` // http|ws
	URL              string  `yaml:"url"`
	WSURL            string  `yaml:"ws_url"`
	TimeoutS         int     `yaml:"timeout_s"`
	MaxRetries       int     `yaml:"max_retries"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps"`
	RefreshIntervalS int     `yaml:"refresh_interval_s"`
}

type TradeConfig struct {
	Amount string `yaml:"amount"` // stake compounded through reported cycles
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads and parses a YAML configuration file. Environment variable
// references in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "arbscan-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Feed.Source == "" {
		cfg.Feed.Source = "http"
	}
	if cfg.Feed.TimeoutS == 0 {
		cfg.Feed.TimeoutS = 10
	}
	if cfg.Feed.MaxRetries == 0 {
		cfg.Feed.MaxRetries = 2
	}
	if cfg.Feed.RateLimitRPS == 0 {
		cfg.Feed.RateLimitRPS = 2
	}
	if cfg.Feed.RefreshIntervalS == 0 {
		cfg.Feed.RefreshIntervalS = 30
	}
	if cfg.Trade.Amount == "" {
		cfg.Trade.Amount = "100"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}
