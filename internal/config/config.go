// Package config loads tickerlab configuration from YAML with environment
// variable overrides. The config file lives at <data-dir>/config.yaml; a
// missing file yields defaults so the CLI works with nothing but
// GEMINI_API_KEY exported.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for everything tunable. The config file and environment only
// need to mention what deviates.
const (
	DefaultModel         = "gemini-2.5-pro"
	DefaultFallbackModel = "gemini-2.5-flash"
	DefaultCallTimeout   = 120 * time.Second
	DefaultStageDelay    = 15 * time.Second
	DefaultBackoffBase   = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultQuorum        = 3
	DefaultLocalCap      = 20
	DefaultMongoDatabase = "tickerlab"
	DefaultMongoTimeout  = 10 * time.Second
)

// Config holds all tickerlab configuration.
type Config struct {
	// DataDir is where logs, the local history file, and the usage ledger
	// live. "~" expands to the user home directory.
	DataDir string `yaml:"data_dir"`

	Gemini   GeminiConfig   `yaml:"gemini"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	History  HistoryConfig  `yaml:"history"`
	Mongo    MongoConfig    `yaml:"mongo"`
	User     UserConfig     `yaml:"user"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GeminiConfig configures the remote model client.
type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	Timeout       string `yaml:"timeout"`
}

// PipelineConfig configures workflow pacing and retry policy.
type PipelineConfig struct {
	StageDelay  string `yaml:"stage_delay"`  // courtesy window between stages
	BackoffBase string `yaml:"backoff_base"` // base for exponential retry backoff
	MaxRetries  int    `yaml:"max_retries"`  // additional attempts after the first
	Quorum      int    `yaml:"quorum"`       // min specialist successes before synthesis
}

// HistoryConfig configures session persistence.
type HistoryConfig struct {
	LocalCap int `yaml:"local_cap"` // max entries kept by the local store
}

// MongoConfig configures the durable per-user store. Empty URI disables it.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	Timeout  string `yaml:"timeout"`
}

// UserConfig identifies the owner scope for durable persistence.
type UserConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "~/.tickerlab",
		Gemini: GeminiConfig{
			Model:         DefaultModel,
			FallbackModel: DefaultFallbackModel,
			Timeout:       DefaultCallTimeout.String(),
		},
		Pipeline: PipelineConfig{
			StageDelay:  DefaultStageDelay.String(),
			BackoffBase: DefaultBackoffBase.String(),
			MaxRetries:  DefaultMaxRetries,
			Quorum:      DefaultQuorum,
		},
		History: HistoryConfig{
			LocalCap: DefaultLocalCap,
		},
		Mongo: MongoConfig{
			Database: DefaultMongoDatabase,
			Timeout:  DefaultMongoTimeout.String(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tickerlab", "config.yaml")
	}
	return filepath.Join(home, ".tickerlab", "config.yaml")
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if model := os.Getenv("TICKERLAB_MODEL"); model != "" {
		c.Gemini.Model = model
	}
	if model := os.Getenv("TICKERLAB_FALLBACK_MODEL"); model != "" {
		c.Gemini.FallbackModel = model
	}
	if uri := os.Getenv("TICKERLAB_MONGO_URI"); uri != "" {
		c.Mongo.URI = uri
	}
	if id := os.Getenv("TICKERLAB_USER_ID"); id != "" {
		c.User.ID = id
	}
	if dir := os.Getenv("TICKERLAB_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if delay := os.Getenv("TICKERLAB_STAGE_DELAY"); delay != "" {
		c.Pipeline.StageDelay = delay
	}
	if debug := os.Getenv("TICKERLAB_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			c.Logging.Debug = v
			if v && c.Logging.Level == "info" {
				c.Logging.Level = "debug"
			}
		}
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("Gemini API key not configured (set GEMINI_API_KEY or gemini.api_key)")
	}
	if c.Pipeline.Quorum < 1 {
		return fmt.Errorf("pipeline quorum must be at least 1, got %d", c.Pipeline.Quorum)
	}
	return nil
}

// ResolvedDataDir expands a leading "~" to the user home directory.
func (c *Config) ResolvedDataDir() string {
	dir := c.DataDir
	if dir == "" {
		dir = "~/.tickerlab"
	}
	if len(dir) > 0 && dir[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	return dir
}

// DurableScope reports whether durable per-user persistence is configured.
func (c *Config) DurableScope() bool {
	return c.User.ID != "" && c.Mongo.URI != ""
}

// CallTimeout returns the per-call deadline for remote model requests.
func (c *Config) CallTimeout() time.Duration {
	return parseDuration(c.Gemini.Timeout, DefaultCallTimeout)
}

// StageDelay returns the courtesy window between pipeline stages.
func (c *Config) StageDelay() time.Duration {
	return parseDuration(c.Pipeline.StageDelay, DefaultStageDelay)
}

// BackoffBase returns the base duration for exponential retry backoff.
func (c *Config) BackoffBase() time.Duration {
	return parseDuration(c.Pipeline.BackoffBase, DefaultBackoffBase)
}

// MongoTimeout returns the per-operation deadline for the durable store.
func (c *Config) MongoTimeout() time.Duration {
	return parseDuration(c.Mongo.Timeout, DefaultMongoTimeout)
}

// parseDuration parses s, falling back to def on empty or malformed input.
// Zero is a valid parsed value; tests rely on "0s" disabling delays.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
