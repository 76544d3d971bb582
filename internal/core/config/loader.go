package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file, expanding ${VAR} references
// against the process environment before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 20 * time.Second
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 20
	}
	if cfg.Queue.LeaseTTL == 0 {
		cfg.Queue.LeaseTTL = 300 * time.Second
	}
	if cfg.Queue.DeadLetterThreshold == 0 {
		cfg.Queue.DeadLetterThreshold = 10
	}
	if cfg.Queue.SeedInterval == 0 {
		cfg.Queue.SeedInterval = 10 * time.Second
	}
	if cfg.Queue.JanitorInterval == 0 {
		cfg.Queue.JanitorInterval = 10 * time.Second
	}
	if cfg.RateLimit.CallsPerSec == 0 {
		cfg.RateLimit.CallsPerSec = 50
	}
	if cfg.Fetcher.MaxRetries == 0 {
		cfg.Fetcher.MaxRetries = 5
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.MaxConcurrent == 0 {
		cfg.Worker.MaxConcurrent = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
