package config

import (
	"time"

	"github.com/evmwatch/indexer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  postgres.Config `yaml:"database"`
	RPC       RPCConfig       `yaml:"rpc"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the health+metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RedisConfig holds the coordination store's connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// RPCConfig holds the upstream EVM node settings.
type RPCConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Timeout   time.Duration    `yaml:"timeout"`
}

// ProviderConfig names one upstream JSON-RPC endpoint.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// QueueConfig holds work-queue tuning.
type QueueConfig struct {
	BatchSize           uint64        `yaml:"batch_size"`
	LeaseTTL            time.Duration `yaml:"lease_ttl"`
	MinBlock            uint64        `yaml:"min_block"`
	DeadLetterThreshold int           `yaml:"dead_letter_threshold"`
	SeedInterval        time.Duration `yaml:"seed_interval"`
	JanitorInterval     time.Duration `yaml:"janitor_interval"`
}

// RateLimitConfig holds the global sliding-window rate limit.
type RateLimitConfig struct {
	CallsPerSec int `yaml:"calls_per_sec"`
}

// FetcherConfig holds per-height fetch retry tuning.
type FetcherConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// WorkerConfig holds worker loop tuning.
type WorkerConfig struct {
	Count         int `yaml:"count"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // read but not applied: output is always tint's colorized text
}
