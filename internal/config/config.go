// Package config loads the daemon configuration from a YAML file with
// environment overrides for secrets and deployment settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/cache"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/felixgeelhaar/benjudge/internal/llm"
	"github.com/felixgeelhaar/benjudge/internal/verdict"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Cache     CacheConfig     `yaml:"cache"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Verdict   VerdictConfig   `yaml:"verdict"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port         int    `yaml:"port"`
	Bind         string `yaml:"bind"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	SecureCookie bool   `yaml:"secure_cookie"`

	// FlowRequestsPerMinute limits reasoning-backed requests per user; 0 disables it.
	FlowRequestsPerMinute int `yaml:"flow_requests_per_minute"`
}

// Addr returns the listen address.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Bind, d.Port)
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	Backend        string        `yaml:"backend"` // memory, badger
	Path           string        `yaml:"path"`    // badger directory; empty keeps badger in memory
	TTL            time.Duration `yaml:"ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	MaxEntries     int           `yaml:"max_entries"`
	KeyMode        cache.KeyMode `yaml:"key_mode"`
	CollapseMisses bool          `yaml:"collapse_misses"`
}

// ReasoningConfig holds the reasoning-service providers.
type ReasoningConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
	Resilience      llm.ResilienceConfig       `yaml:"resilience"`
	Limits          judge.Limits               `yaml:"limits"`
}

// ProviderConfig holds settings for a single provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"`
	APIKey  string `yaml:"-"` // environment only
}

// VerdictConfig selects the review interpretation strategy.
type VerdictConfig struct {
	Mode           verdict.Mode `yaml:"mode"`
	LegacyFallback bool         `yaml:"legacy_fallback"`
}

// LedgerConfig holds the XP rules and consistency options.
type LedgerConfig struct {
	Rules               ledger.Rules `yaml:"rules"`
	Atomic              bool         `yaml:"atomic"`
	SerializeFirstBonus bool         `yaml:"serialize_first_bonus"`
	RankingLimit        int          `yaml:"ranking_limit"`
}

// Options returns the ledger options.
func (l LedgerConfig) Options() ledger.Options {
	return ledger.Options{Atomic: l.Atomic, SerializeFirstBonus: l.SerializeFirstBonus}
}

// StorageConfig selects the progress store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"-"` // DATABASE_URL
}

// QueueConfig enables submission events.
type QueueConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"-"` // RABBITMQ_URL
	MessageTTL time.Duration `yaml:"message_ttl"`
}

// CatalogConfig locates the problem catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Provider names
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Environment variables
const (
	EnvConfig      = "BENJUDGE_CONFIG"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvClaudeKey   = "ANTHROPIC_API_KEY"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvDatabaseURL = "DATABASE_URL"
	EnvRabbitMQURL = "RABBITMQ_URL"
	EnvPort        = "PORT"
	EnvLogLevel    = "LOG_LEVEL"
)

// Dir returns the path to ~/.benjudge
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".benjudge"), nil
}

// DefaultConfig returns sensible defaults for a single-node daemon.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Port:                  3000,
			Bind:                  "0.0.0.0",
			LogLevel:              "info",
			FlowRequestsPerMinute: 20,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTL:           cache.DefaultTTL,
			SweepInterval: 10 * time.Minute,
			MaxEntries:    10000,
			KeyMode:       cache.KeyModeHash,
		},
		Reasoning: ReasoningConfig{
			DefaultProvider: ProviderGemini,
			Providers: map[string]*ProviderConfig{
				ProviderGemini: {Enabled: true, Model: llm.DefaultGeminiModel},
				ProviderClaude: {Enabled: false, Model: "claude-sonnet-4-20250514"},
				ProviderOpenAI: {Enabled: false, Model: "gpt-4o-mini"},
			},
			Resilience: llm.DefaultResilienceConfig(),
			Limits:     judge.DefaultLimits(),
		},
		Verdict: VerdictConfig{
			Mode: verdict.ModeHeuristic,
		},
		Ledger: LedgerConfig{
			Rules:        ledger.DefaultRules(),
			RankingLimit: 50,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "benjudge.db",
		},
		Queue: QueueConfig{
			MessageTTL: 24 * time.Hour,
		},
		Catalog: CatalogConfig{
			Path: "problemas.json",
		},
	}
}

// Path returns the config file location: $BENJUDGE_CONFIG, else
// ~/.benjudge/config.yaml.
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at Path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Daemon.Port = getEnvInt(EnvPort, c.Daemon.Port)
	c.Daemon.LogLevel = getEnv(EnvLogLevel, c.Daemon.LogLevel)

	keys := map[string]string{
		ProviderGemini: EnvGeminiKey,
		ProviderClaude: EnvClaudeKey,
		ProviderOpenAI: EnvOpenAIKey,
	}
	for name, env := range keys {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		p, ok := c.Reasoning.Providers[name]
		if !ok {
			p = &ProviderConfig{Enabled: true}
			c.Reasoning.Providers[name] = p
		}
		p.APIKey = key
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		c.Storage.PostgresURL = url
		c.Storage.Driver = "postgres"
	}
	if url := os.Getenv(EnvRabbitMQURL); url != "" {
		c.Queue.URL = url
		c.Queue.Enabled = true
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Daemon.Port)
	}
	if c.Daemon.FlowRequestsPerMinute < 0 {
		return errors.New("config: daemon.flow_requests_per_minute must not be negative")
	}
	switch c.Cache.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if _, err := cache.NewKeyer(c.Cache.KeyMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := verdict.New(c.Verdict.Mode, c.Verdict.LegacyFallback); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: %s must be set for postgres", EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("config: %s must be set when the queue is enabled", EnvRabbitMQURL)
	}
	if c.Catalog.Path == "" {
		return errors.New("config: catalog.path is required")
	}
	return nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
