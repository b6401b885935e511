package config

import (
	"fmt"
	"time"
)

// LockConfig controls the per-report execution lock.
type LockConfig struct {
	// TTL is the lock expiry. Must be strictly greater than the longest
	// expected pipeline duration (run deadline + safety margin), so a live
	// run is never starved of its own lock.
	TTL time.Duration `yaml:"ttl"`

	// RefreshInterval is the heartbeat period for lock extension.
	// Constrained to >= 60s (avoid hammering the store) and <= TTL/5.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// PostCompletionExtension is granted after a successful run so the
	// caller has an exclusive window for artifact publication.
	PostCompletionExtension time.Duration `yaml:"post_completion_extension"`
}

// DefaultLockConfig returns the built-in lock defaults.
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		TTL:                     35 * time.Minute,
		RefreshInterval:         2 * time.Minute,
		PostCompletionExtension: 10 * time.Minute,
	}
}

// Validate checks the lock timing constraints.
func (c *LockConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("lock configuration is nil")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if c.RefreshInterval < 60*time.Second {
		return fmt.Errorf("refresh_interval must be at least 60s")
	}
	if c.RefreshInterval > c.TTL/5 {
		return fmt.Errorf("refresh_interval must be at most ttl/5 (%v)", c.TTL/5)
	}
	if c.PostCompletionExtension < 5*time.Minute || c.PostCompletionExtension > 15*time.Minute {
		return fmt.Errorf("post_completion_extension must be between 5m and 15m")
	}
	return nil
}
