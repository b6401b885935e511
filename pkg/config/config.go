// Package config contains runtime configuration and the job descriptor
// contract, including ingress validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration for a worker process.
type Config struct {
	Redis       *RedisConfig       `yaml:"redis"`
	Lock        *LockConfig        `yaml:"lock"`
	Pipeline    *PipelineConfig    `yaml:"pipeline"`
	Queue       *QueueConfig       `yaml:"queue"`
	Perspective *PerspectiveConfig `yaml:"perspective"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Redis:       DefaultRedisConfig(),
		Lock:        DefaultLockConfig(),
		Pipeline:    DefaultPipelineConfig(),
		Queue:       DefaultQueueConfig(),
		Perspective: DefaultPerspectiveConfig(),
	}
}

// Load reads a YAML configuration file over the defaults and then overlays
// environment variables. A missing file is not an error: the defaults plus
// the environment are used as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err == nil {
		if yamlErr := yaml.Unmarshal(ExpandEnv(data), cfg); yamlErr != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, yamlErr)
		}
	}
	cfg.Redis.applyEnv()
	cfg.Perspective.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every sub-config plus the cross-config timing constraints.
func (c *Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Lock.Validate(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := c.Perspective.Validate(); err != nil {
		return fmt.Errorf("perspective: %w", err)
	}
	// The lock must outlive the longest possible run, otherwise a slow but
	// still-alive run would be starved of its own lock.
	if c.Lock.TTL <= c.Pipeline.RunDeadline {
		return fmt.Errorf("lock TTL (%v) must exceed the run deadline (%v)", c.Lock.TTL, c.Pipeline.RunDeadline)
	}
	return nil
}
