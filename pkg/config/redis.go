package config

import (
	"fmt"
	"os"
	"strconv"
)

// RedisConfig describes the shared Redis-compatible store used for run state,
// locks, the global rate limit, the score cache, and the job queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultRedisConfig returns the built-in Redis defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr: "localhost:6379",
	}
}

// applyEnv overlays REDIS_* environment variables. Environment wins over the
// config file so deployments can inject credentials without editing YAML.
func (c *RedisConfig) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Password = pw
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.DB = n
		}
	}
}

// Validate checks the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("redis configuration is nil")
	}
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.DB < 0 {
		return fmt.Errorf("db must not be negative")
	}
	return nil
}
