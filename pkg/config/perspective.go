package config

import (
	"fmt"
	"os"
	"time"
)

// PerspectiveConfig controls the external classifier integration: the HTTP
// client, the global admission gate, and the score cache.
type PerspectiveConfig struct {
	// APIKey authenticates against the classifier API. Usually injected via
	// the PERSPECTIVE_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL is the classifier endpoint root.
	BaseURL string `yaml:"base_url"`

	// EnvPrefix namespaces cache keys (e.g. "dev", "prod") so development
	// traffic cannot poison production entries.
	EnvPrefix string `yaml:"env_prefix"`

	// CacheTTL is the score cache retention.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RateLimitKey is the shared Redis key holding the last admission
	// timestamp. All pods contend on this one key, so the fleet admits
	// at most one call per MinInterval.
	RateLimitKey string `yaml:"rate_limit_key"`

	// MinInterval is the global spacing between classifier admissions.
	MinInterval time.Duration `yaml:"min_interval"`

	// PollGranularity bounds each limiter sleep so cancellation is prompt.
	PollGranularity time.Duration `yaml:"poll_granularity"`

	// FallbackDelay is the per-worker fixed delay used when the shared
	// store is unreachable and the limiter degrades to local pacing.
	FallbackDelay time.Duration `yaml:"fallback_delay"`

	// RateLimitKeyTTL expires the admission key so idle periods auto-clean.
	RateLimitKeyTTL time.Duration `yaml:"rate_limit_key_ttl"`
}

// DefaultPerspectiveConfig returns the built-in classifier defaults.
func DefaultPerspectiveConfig() *PerspectiveConfig {
	return &PerspectiveConfig{
		BaseURL:         "https://commentanalyzer.googleapis.com/v1alpha1",
		EnvPrefix:       "dev",
		CacheTTL:        30 * 24 * time.Hour,
		RateLimitKey:    "perspective:global-rate-limit",
		MinInterval:     1 * time.Second,
		PollGranularity: 50 * time.Millisecond,
		FallbackDelay:   1100 * time.Millisecond,
		RateLimitKeyTTL: 60 * time.Second,
	}
}

// applyEnv overlays PERSPECTIVE_* environment variables.
func (c *PerspectiveConfig) applyEnv() {
	if key := os.Getenv("PERSPECTIVE_API_KEY"); key != "" {
		c.APIKey = key
	}
	if prefix := os.Getenv("PERSPECTIVE_ENV_PREFIX"); prefix != "" {
		c.EnvPrefix = prefix
	}
}

// Validate checks the classifier configuration.
func (c *PerspectiveConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("perspective configuration is nil")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.EnvPrefix == "" {
		return fmt.Errorf("env_prefix must not be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.RateLimitKey == "" {
		return fmt.Errorf("rate_limit_key must not be empty")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("min_interval must be positive")
	}
	if c.PollGranularity <= 0 || c.PollGranularity > c.MinInterval {
		return fmt.Errorf("poll_granularity must be positive and at most min_interval")
	}
	if c.FallbackDelay < c.MinInterval {
		return fmt.Errorf("fallback_delay must be at least min_interval")
	}
	return nil
}
