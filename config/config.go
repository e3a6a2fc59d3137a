// Package config loads runtime configuration for the nurturemesh CLI and
// daemon from environment variables and optional config files, with sane
// defaults for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable of the mesh. Zero values are replaced by
// defaults during Load.
type Config struct {
	// DataDir holds the sqlite lead store. Empty selects the in-memory store.
	DataDir string `mapstructure:"data-dir"`

	// DirectoryEndpoint is the base URL of the agent directory. Empty
	// selects the in-memory directory.
	DirectoryEndpoint string `mapstructure:"directory-endpoint"`

	// TemplateDir is scanned for template files (json or yaml) at startup.
	TemplateDir string `mapstructure:"template-dir"`

	// OpenAIAPIKey enables the embeddings-backed template index.
	OpenAIAPIKey string `mapstructure:"openai-api-key"`

	// AnthropicAPIKey enables LLM message personalization.
	AnthropicAPIKey string `mapstructure:"anthropic-api-key"`

	// WebhookURL enables webhook delivery. Empty selects log-only delivery.
	WebhookURL string `mapstructure:"webhook-url"`

	// SimilarityFloor is the minimum cosine similarity for a template match.
	SimilarityFloor float64 `mapstructure:"similarity-floor"`

	// GracePeriod is the response window before a follow-up fires.
	GracePeriod time.Duration `mapstructure:"grace-period"`

	// MaxAttempts is the contact ceiling per stage before a lead is lost.
	MaxAttempts int `mapstructure:"max-attempts"`

	// BackoffBase and BackoffCap bound the exponential contact spacing.
	BackoffBase time.Duration `mapstructure:"backoff-base"`
	BackoffCap  time.Duration `mapstructure:"backoff-cap"`

	// LeaseTimeout is how long a claimed action stays invisible before it
	// is reclaimed.
	LeaseTimeout time.Duration `mapstructure:"lease-timeout"`

	// MaxConcurrent bounds delivery workers per tick.
	MaxConcurrent int `mapstructure:"max-concurrent"`

	// TickInterval is the daemon's polling period.
	TickInterval time.Duration `mapstructure:"tick-interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from the environment (NURTUREMESH_ prefix) and
// an optional config file, layered over defaults.
func Load(configFile string) (Config, error) {
	v := viper.New()

	// Every key needs a default registered for AutomaticEnv to surface it
	// through Unmarshal.
	v.SetDefault("data-dir", "")
	v.SetDefault("directory-endpoint", "")
	v.SetDefault("template-dir", "")
	v.SetDefault("openai-api-key", "")
	v.SetDefault("anthropic-api-key", "")
	v.SetDefault("webhook-url", "")
	v.SetDefault("similarity-floor", 0.15)
	v.SetDefault("grace-period", 72*time.Hour)
	v.SetDefault("max-attempts", 4)
	v.SetDefault("backoff-base", 24*time.Hour)
	v.SetDefault("backoff-cap", 7*24*time.Hour)
	v.SetDefault("lease-timeout", 5*time.Minute)
	v.SetDefault("max-concurrent", 4)
	v.SetDefault("tick-interval", time.Minute)
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("NURTUREMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.SimilarityFloor < -1 || c.SimilarityFloor > 1 {
		return fmt.Errorf("similarity-floor must be within [-1, 1], got %v", c.SimilarityFloor)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff bounds invalid: base=%v cap=%v", c.BackoffBase, c.BackoffCap)
	}
	if c.LeaseTimeout <= 0 {
		return fmt.Errorf("lease-timeout must be positive, got %v", c.LeaseTimeout)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max-concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}
