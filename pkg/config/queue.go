package config

import (
	"fmt"
	"time"
)

// QueueConfig contains job queue and worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently pops and processes jobs.
	WorkerCount int `yaml:"worker_count"`

	// JobQueueKey is the Redis list key holding pending job descriptors.
	JobQueueKey string `yaml:"job_queue_key"`

	// PopTimeout is the blocking-pop timeout per poll. Workers re-check
	// shutdown signals between polls.
	PopTimeout time.Duration `yaml:"pop_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active runs to
	// complete during shutdown. Should match the run deadline.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             3,
		JobQueueKey:             "pipeline_jobs",
		PopTimeout:              2 * time.Second,
		GracefulShutdownTimeout: 30 * time.Minute,
	}
}

// Validate checks the queue configuration.
func (c *QueueConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if c.WorkerCount < 1 || c.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50")
	}
	if c.JobQueueKey == "" {
		return fmt.Errorf("job_queue_key must not be empty")
	}
	if c.PopTimeout <= 0 {
		return fmt.Errorf("pop_timeout must be positive")
	}
	if c.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive")
	}
	return nil
}
