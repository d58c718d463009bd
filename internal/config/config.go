package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultHighThreshold is the default confidence at or above which a
	// fact commits without confirmation.
	DefaultHighThreshold = 0.80

	// DefaultLowThreshold is the default confidence below which a fact is
	// rejected outright.
	DefaultLowThreshold = 0.50

	// DefaultConfirmationTTLHours is how long a pending confirmation waits
	// before the expiry sweep discards it.
	DefaultConfirmationTTLHours = 72

	// DefaultMinUtteranceChars is the minimum utterance length sent to the
	// extraction service.
	DefaultMinUtteranceChars = 12
)

// Config holds all configuration for voicegraph.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Claude   ClaudeConfig   `mapstructure:"claude"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// StoreConfig holds durable store settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Neo4jConfig holds fast-path graph store connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", maskAPIKey(c.APIKey), c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// PipelineConfig holds routing, queue and retry settings.
type PipelineConfig struct {
	HighThreshold        float64  `mapstructure:"high_threshold"`
	LowThreshold         float64  `mapstructure:"low_threshold"`
	HardKeywords         []string `mapstructure:"hard_keywords"`
	ConfirmationTTLHours int      `mapstructure:"confirmation_ttl_hours"`
	SweepIntervalMinutes int      `mapstructure:"sweep_interval_minutes"`
	MinUtteranceChars    int      `mapstructure:"min_utterance_chars"`
	CommitMaxAttempts    int      `mapstructure:"commit_max_attempts"`
	CommitBackoffMillis  int      `mapstructure:"commit_backoff_millis"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// defaultHardKeywords force confirmation regardless of confidence. They mark
// exclusivity or commitment language that must not be auto-committed.
var defaultHardKeywords = []string{
	"only", "just", "exclusively", "nothing else",
	"must", "need to", "have to", "required",
	"relocating", "moving to", "must be in",
	"won't consider", "definitely not", "never",
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.path", filepath.Join(homeDir(), ".voicegraph", "voicegraph.db"))

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.enabled", true)

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("pipeline.high_threshold", DefaultHighThreshold)
	v.SetDefault("pipeline.low_threshold", DefaultLowThreshold)
	v.SetDefault("pipeline.hard_keywords", defaultHardKeywords)
	v.SetDefault("pipeline.confirmation_ttl_hours", DefaultConfirmationTTLHours)
	v.SetDefault("pipeline.sweep_interval_minutes", 15)
	v.SetDefault("pipeline.min_utterance_chars", DefaultMinUtteranceChars)
	v.SetDefault("pipeline.commit_max_attempts", 3)
	v.SetDefault("pipeline.commit_backoff_millis", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".voicegraph"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("VOICEGRAPH")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("store.path", "VOICEGRAPH_STORE_PATH")
	_ = v.BindEnv("neo4j.uri", "VOICEGRAPH_NEO4J_URI")
	_ = v.BindEnv("neo4j.username", "VOICEGRAPH_NEO4J_USERNAME")
	_ = v.BindEnv("neo4j.password", "VOICEGRAPH_NEO4J_PASSWORD")
	_ = v.BindEnv("api.listen_addr", "VOICEGRAPH_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "VOICEGRAPH_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri must not be empty when neo4j is enabled")
	}
	if c.Pipeline.LowThreshold < 0 || c.Pipeline.LowThreshold > 1 {
		return fmt.Errorf("pipeline.low_threshold must be between 0 and 1")
	}
	if c.Pipeline.HighThreshold < 0 || c.Pipeline.HighThreshold > 1 {
		return fmt.Errorf("pipeline.high_threshold must be between 0 and 1")
	}
	if c.Pipeline.LowThreshold > c.Pipeline.HighThreshold {
		return fmt.Errorf("pipeline.low_threshold (%.2f) must not exceed pipeline.high_threshold (%.2f)",
			c.Pipeline.LowThreshold, c.Pipeline.HighThreshold)
	}
	if c.Pipeline.ConfirmationTTLHours <= 0 {
		return fmt.Errorf("pipeline.confirmation_ttl_hours must be greater than 0")
	}
	if c.Pipeline.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("pipeline.sweep_interval_minutes must be greater than 0")
	}
	if c.Pipeline.MinUtteranceChars < 0 {
		return fmt.Errorf("pipeline.min_utterance_chars must be >= 0")
	}
	if c.Pipeline.CommitMaxAttempts <= 0 {
		return fmt.Errorf("pipeline.commit_max_attempts must be greater than 0")
	}
	if c.Pipeline.CommitBackoffMillis < 0 {
		return fmt.Errorf("pipeline.commit_backoff_millis must be >= 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
