package config

import (
	"fmt"
	"time"
)

// PipelineConfig controls run execution and state retention.
type PipelineConfig struct {
	// RunDeadline is the overall per-run timeout. Exceeding it triggers the
	// cancellation path.
	RunDeadline time.Duration `yaml:"run_deadline"`

	// StateTTL is the retention of successful/running run state.
	StateTTL time.Duration `yaml:"state_ttl"`

	// FailedStateTTL is the retention of failed run state. Shorter than
	// StateTTL to prevent memory buildup during outages.
	FailedStateTTL time.Duration `yaml:"failed_state_ttl"`

	// MaxValidationFailures is the per-stage bound on cached-result
	// revalidation failures before the run terminates as corrupted.
	MaxValidationFailures int `yaml:"max_validation_failures"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		RunDeadline:           30 * time.Minute,
		StateTTL:              24 * time.Hour,
		FailedStateTTL:        1 * time.Hour,
		MaxValidationFailures: 3,
	}
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("pipeline configuration is nil")
	}
	if c.RunDeadline <= 0 {
		return fmt.Errorf("run_deadline must be positive")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("state_ttl must be positive")
	}
	if c.FailedStateTTL <= 0 {
		return fmt.Errorf("failed_state_ttl must be positive")
	}
	if c.FailedStateTTL > c.StateTTL {
		return fmt.Errorf("failed_state_ttl must not exceed state_ttl")
	}
	if c.MaxValidationFailures < 1 {
		return fmt.Errorf("max_validation_failures must be at least 1")
	}
	return nil
}
