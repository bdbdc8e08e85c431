// Package config loads spyglass configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Rewrite   RewriteConfig
	Transport TransportConfig
	Worker    WorkerConfig
	Search    SearchConfig
	Observe   ObserveConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8200"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// RewriteConfig holds URL rewrite codec configuration.
type RewriteConfig struct {
	Codec  string `envconfig:"REWRITE_CODEC" default:"xor"` // "xor" or "sealed"
	Prefix string `envconfig:"REWRITE_PREFIX" default:"/service/"`
	Key    string `envconfig:"REWRITE_KEY" default:"spyglass"`
}

// TransportConfig holds transport configurator settings.
type TransportConfig struct {
	Endpoint   string        `envconfig:"TRANSPORT_ENDPOINT" default:"ws://localhost:4000/wisp/"`
	DialTarget string        `envconfig:"TRANSPORT_DIAL_TARGET" default:""`
	Timeout    time.Duration `envconfig:"TRANSPORT_TIMEOUT" default:"10s"`
}

// WorkerConfig holds background worker registration settings.
type WorkerConfig struct {
	Endpoint  string        `envconfig:"WORKER_ENDPOINT" default:"http://localhost:4000/worker"`
	ScriptRef string        `envconfig:"WORKER_SCRIPT" default:"sw.js"`
	Scope     string        `envconfig:"WORKER_SCOPE" default:"/service/**"`
	Type      string        `envconfig:"WORKER_TYPE" default:"module"`
	Timeout   time.Duration `envconfig:"WORKER_TIMEOUT" default:"15s"`
}

// SearchConfig holds search engine defaults and preference persistence.
type SearchConfig struct {
	DefaultEngine string `envconfig:"SEARCH_ENGINE" default:"duckduckgo"`
	PrefsPath     string `envconfig:"PREFS_PATH" default:"spyglass-prefs.toml"`
}

// ObserveConfig holds surface observation loop settings.
type ObserveConfig struct {
	PollInterval time.Duration `envconfig:"OBSERVE_POLL_INTERVAL" default:"500ms"`
	FetchTimeout time.Duration `envconfig:"OBSERVE_FETCH_TIMEOUT" default:"30s"`
	// FetchRPS caps outbound document fetches per second. Zero disables the
	// cap.
	FetchRPS float64 `envconfig:"OBSERVE_FETCH_RPS" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8200",
			Host: "0.0.0.0",
		},
		Rewrite: RewriteConfig{
			Codec:  "xor",
			Prefix: "/service/",
			Key:    "spyglass",
		},
		Transport: TransportConfig{
			Endpoint: "ws://localhost:4000/wisp/",
			Timeout:  10 * time.Second,
		},
		Worker: WorkerConfig{
			Endpoint:  "http://localhost:4000/worker",
			ScriptRef: "sw.js",
			Scope:     "/service/**",
			Type:      "module",
			Timeout:   15 * time.Second,
		},
		Search: SearchConfig{
			DefaultEngine: "duckduckgo",
			PrefsPath:     "spyglass-prefs.toml",
		},
		Observe: ObserveConfig{
			PollInterval: 500 * time.Millisecond,
			FetchTimeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
